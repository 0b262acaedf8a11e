package upgrade

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Defaults of the upgrade tool.
const (
	DefaultRepositoryURL = "packages.cloupeer.io/wpk/"
	DefaultChunkSize     = 512
	DefaultInstaller     = "upgrade.sh"
	DefaultRetries       = 100
	DefaultInterval      = 2 * time.Second
	DefaultGrace         = 10 * time.Second
	DefaultSettle        = 10 * time.Second
)

// HeartbeatPolicy decides whether the agent's keep-alive moved away from the
// value captured before dispatch.
type HeartbeatPolicy func(baseline, current time.Time) bool

// HeartbeatChanged treats any change as progress, including a keep-alive that
// went backwards after a clock adjustment on the manager.
func HeartbeatChanged(baseline, current time.Time) bool {
	return !current.Equal(baseline)
}

// HeartbeatAdvanced only accepts a strictly later keep-alive.
func HeartbeatAdvanced(baseline, current time.Time) bool {
	return current.After(baseline)
}

// PolicyByName resolves the names accepted by --upgrade.heartbeat-policy.
func PolicyByName(name string) (HeartbeatPolicy, error) {
	switch name {
	case "changed", "":
		return HeartbeatChanged, nil
	case "advanced":
		return HeartbeatAdvanced, nil
	default:
		return nil, fmt.Errorf("unknown heartbeat policy %q, must be 'changed' or 'advanced'", name)
	}
}

// Timing holds the fixed waits around the confirmation loop.
type Timing struct {
	// Grace is waited once after dispatch, before the first poll.
	Grace time.Duration
	// Settle is waited once after confirmation, before fetching the result.
	Settle time.Duration
}

// Config is the immutable configuration of an Orchestrator. It is copied on
// construction; tests inject small retry budgets and intervals through it.
type Config struct {
	DefaultRepositoryURL string
	DefaultChunkSize     int
	DefaultInstaller     string

	// Retries is the maximum number of polls after dispatch.
	Retries int
	// Interval is waited before every poll.
	Interval time.Duration

	// CustomTiming applies to custom file upgrades, RepositoryTiming to repository upgrades.
	CustomTiming     Timing
	RepositoryTiming Timing

	// HeartbeatPolicy defaults to HeartbeatChanged when nil.
	HeartbeatPolicy HeartbeatPolicy
}

// DefaultConfig returns the production defaults. Custom file upgrades wait
// before polling and repository upgrades wait after confirmation.
func DefaultConfig() Config {
	return Config{
		DefaultRepositoryURL: DefaultRepositoryURL,
		DefaultChunkSize:     DefaultChunkSize,
		DefaultInstaller:     DefaultInstaller,
		Retries:              DefaultRetries,
		Interval:             DefaultInterval,
		CustomTiming:         Timing{Grace: DefaultGrace},
		RepositoryTiming:     Timing{Settle: DefaultSettle},
		HeartbeatPolicy:      HeartbeatChanged,
	}
}

// Timing returns the waits that apply to mode.
func (c Config) Timing(mode Mode) Timing {
	if mode == ModeCustomFile {
		return c.CustomTiming
	}
	return c.RepositoryTiming
}

// Validate reports every inconsistent field.
func (c Config) Validate() error {
	var errs []error

	if c.DefaultRepositoryURL == "" {
		errs = append(errs, fmt.Errorf("default repository url must not be empty"))
	}
	if err := ValidateChunkSize(c.DefaultChunkSize); err != nil {
		errs = append(errs, fmt.Errorf("default chunk size: %w", err))
	}
	if c.DefaultInstaller == "" {
		errs = append(errs, fmt.Errorf("default installer must not be empty"))
	}
	if c.Retries < 1 {
		errs = append(errs, fmt.Errorf("retries must be at least 1, got %d", c.Retries))
	}
	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative"))
	}
	for mode, t := range map[Mode]Timing{ModeCustomFile: c.CustomTiming, ModeRepository: c.RepositoryTiming} {
		if t.Grace < 0 || t.Settle < 0 {
			errs = append(errs, fmt.Errorf("%s timing must not be negative", mode))
		}
	}

	return utilerrors.NewAggregate(errs)
}

func (c Config) policy() HeartbeatPolicy {
	if c.HeartbeatPolicy == nil {
		return HeartbeatChanged
	}
	return c.HeartbeatPolicy
}
