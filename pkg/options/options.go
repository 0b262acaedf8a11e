package options

import "github.com/spf13/pflag"

// IOptions is implemented by every option group in this package.
type IOptions interface {
	// Validate checks the values entered by the user and returns every problem found.
	Validate() []error

	// AddFlags binds the option group to the given FlagSet.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
