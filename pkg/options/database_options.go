package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DatabaseOptions)(nil)

// DatabaseOptions locates the agent registry that holds status, version and keep-alive of every agent.
type DatabaseOptions struct {
	// Path is the SQLite file shared with the manager that records agent keep-alives.
	Path string `json:"path" mapstructure:"path"`

	// BusyTimeout is how long a query waits on a lock held by the manager.
	BusyTimeout time.Duration `json:"busy-timeout" mapstructure:"busy-timeout"`
}

// NewDatabaseOptions creates a DatabaseOptions object with default parameters.
func NewDatabaseOptions() *DatabaseOptions {
	return &DatabaseOptions{
		Path:        "/var/lib/cloupeer/agents.db",
		BusyTimeout: 5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *DatabaseOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Path == "" {
		errors = append(errors, fmt.Errorf("--db.path must be set"))
	}
	if o.BusyTimeout < 0 {
		errors = append(errors, fmt.Errorf("--db.busy-timeout must not be negative"))
	}

	return errors
}

// AddFlags adds flags for DatabaseOptions to the specified FlagSet.
func (o *DatabaseOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, "db.path", o.Path, "Path to the SQLite agent registry.")
	fs.DurationVar(&o.BusyTimeout, "db.busy-timeout", o.BusyTimeout, "How long to wait for a locked agent registry.")
}
