package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/agentupgrade/internal/upgrade"
	"github.com/autopeer-io/agentupgrade/pkg/options"
)

var _ options.IOptions = (*TuningOptions)(nil)

// TuningOptions holds the defaults and timing of the upgrade procedure.
type TuningOptions struct {
	RepositoryURL    string `json:"repository-url" mapstructure:"repository-url"`
	DefaultChunkSize int    `json:"chunk-size" mapstructure:"chunk-size"`
	Installer        string `json:"installer" mapstructure:"installer"`

	Retries  int           `json:"retries" mapstructure:"retries"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	CustomGrace      time.Duration `json:"custom-grace" mapstructure:"custom-grace"`
	CustomSettle     time.Duration `json:"custom-settle" mapstructure:"custom-settle"`
	RepositoryGrace  time.Duration `json:"repository-grace" mapstructure:"repository-grace"`
	RepositorySettle time.Duration `json:"repository-settle" mapstructure:"repository-settle"`

	// HeartbeatPolicy is 'changed' or 'advanced'.
	HeartbeatPolicy string `json:"heartbeat-policy" mapstructure:"heartbeat-policy"`

	// ManagerVersion is the reference of --list-outdated. Empty means the
	// version recorded for the manager itself.
	ManagerVersion string `json:"manager-version" mapstructure:"manager-version"`
}

// NewTuningOptions returns the production defaults.
func NewTuningOptions() *TuningOptions {
	d := upgrade.DefaultConfig()
	return &TuningOptions{
		RepositoryURL:    d.DefaultRepositoryURL,
		DefaultChunkSize: d.DefaultChunkSize,
		Installer:        d.DefaultInstaller,
		Retries:          d.Retries,
		Interval:         d.Interval,
		CustomGrace:      d.CustomTiming.Grace,
		CustomSettle:     d.CustomTiming.Settle,
		RepositoryGrace:  d.RepositoryTiming.Grace,
		RepositorySettle: d.RepositoryTiming.Settle,
		HeartbeatPolicy:  "changed",
	}
}

func (o *TuningOptions) Validate() []error {
	var errs []error

	if _, err := upgrade.PolicyByName(o.HeartbeatPolicy); err != nil {
		errs = append(errs, fmt.Errorf("--upgrade.heartbeat-policy: %w", err))
	}
	if cfg, err := o.config(); err == nil {
		if err := cfg.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

func (o *TuningOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.RepositoryURL, "upgrade.repository-url", o.RepositoryURL, "Default WPK repository used when --repository is not given.")
	fs.IntVar(&o.DefaultChunkSize, "upgrade.chunk-size", o.DefaultChunkSize, "Default WPK chunk size used when --chunk-size is not given.")
	fs.StringVar(&o.Installer, "upgrade.installer", o.Installer, "Default installer used when --execute is not given.")
	fs.IntVar(&o.Retries, "upgrade.retries", o.Retries, "Maximum number of keep-alive polls while waiting for the agent to reconnect.")
	fs.DurationVar(&o.Interval, "upgrade.interval", o.Interval, "Wait before every keep-alive poll.")
	fs.DurationVar(&o.CustomGrace, "upgrade.custom-grace", o.CustomGrace, "Wait before the first poll of a custom file upgrade.")
	fs.DurationVar(&o.CustomSettle, "upgrade.custom-settle", o.CustomSettle, "Wait after a custom file upgrade is confirmed.")
	fs.DurationVar(&o.RepositoryGrace, "upgrade.repository-grace", o.RepositoryGrace, "Wait before the first poll of a repository upgrade.")
	fs.DurationVar(&o.RepositorySettle, "upgrade.repository-settle", o.RepositorySettle, "Wait after a repository upgrade is confirmed.")
	fs.StringVar(&o.HeartbeatPolicy, "upgrade.heartbeat-policy", o.HeartbeatPolicy, "How a keep-alive change is detected: 'changed' accepts any change, 'advanced' only a later one.")
	fs.StringVar(&o.ManagerVersion, "upgrade.manager-version", o.ManagerVersion, "Reference version for --list-outdated. Defaults to the manager's own version.")
}

func (o *TuningOptions) config() (upgrade.Config, error) {
	policy, err := upgrade.PolicyByName(o.HeartbeatPolicy)
	if err != nil {
		return upgrade.Config{}, err
	}
	return upgrade.Config{
		DefaultRepositoryURL: o.RepositoryURL,
		DefaultChunkSize:     o.DefaultChunkSize,
		DefaultInstaller:     o.Installer,
		Retries:              o.Retries,
		Interval:             o.Interval,
		CustomTiming:         upgrade.Timing{Grace: o.CustomGrace, Settle: o.CustomSettle},
		RepositoryTiming:     upgrade.Timing{Grace: o.RepositoryGrace, Settle: o.RepositorySettle},
		HeartbeatPolicy:      policy,
	}, nil
}
