package options

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/utils/ptr"

	"github.com/autopeer-io/agentupgrade/internal/upgrade"
	"github.com/autopeer-io/agentupgrade/pkg/log"
	"github.com/autopeer-io/agentupgrade/pkg/options"
)

// EnvPrefix prefixes the environment variables read by Complete, e.g. CPEER_MQTT_BROKER.
const EnvPrefix = "CPEER"

// UpgradeOptions holds every setting of cpeer-agent-upgrade.
type UpgradeOptions struct {
	ConfigFile string `json:"-" mapstructure:"config"`

	AgentID      string `json:"agent" mapstructure:"agent"`
	Repository   string `json:"repository" mapstructure:"repository"`
	Version      string `json:"version" mapstructure:"version"`
	Force        bool   `json:"force" mapstructure:"force"`
	Silent       bool   `json:"silent" mapstructure:"silent"`
	Debug        bool   `json:"debug" mapstructure:"debug"`
	ListOutdated bool   `json:"list-outdated" mapstructure:"list-outdated"`
	ChunkSize    int    `json:"chunk-size" mapstructure:"chunk-size"`
	Timeout      int    `json:"timeout" mapstructure:"timeout"`
	File         string `json:"file" mapstructure:"file"`
	Installer    string `json:"execute" mapstructure:"execute"`
	HTTP         bool   `json:"http" mapstructure:"http"`

	Upgrade  *TuningOptions           `json:"upgrade" mapstructure:"upgrade"`
	Mqtt     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	S3       *options.S3Options       `json:"s3" mapstructure:"s3"`
	Database *options.DatabaseOptions `json:"db" mapstructure:"db"`
	Metrics  *options.MetricsOptions  `json:"metrics" mapstructure:"metrics"`
	Log      *log.Options             `json:"log" mapstructure:"log"`

	// Set by Complete for the flags whose absence has a meaning of its own.
	versionSet bool
	chunkSet   bool
	timeoutSet bool
}

func NewUpgradeOptions() *UpgradeOptions {
	return &UpgradeOptions{
		Upgrade:  NewTuningOptions(),
		Mqtt:     options.NewMqttOptions(),
		S3:       options.NewS3Options(),
		Database: options.NewDatabaseOptions(),
		Metrics:  options.NewMetricsOptions(),
		Log:      log.NewOptions(),
	}
}

func (o *UpgradeOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}

	fs := fss.FlagSet("Upgrade")
	fs.StringVarP(&o.AgentID, "agent", "a", o.AgentID, "Agent ID to upgrade.")
	fs.StringVarP(&o.Repository, "repository", "r", o.Repository, fmt.Sprintf("Specify a repository URL. [Default: %s]", o.Upgrade.RepositoryURL))
	fs.StringVarP(&o.Version, "version", "v", o.Version, "Version to upgrade, vX.Y.Z. [Default: latest version]")
	fs.BoolVarP(&o.Force, "force", "F", o.Force, "Allows reinstall same version and downgrade version.")
	fs.BoolVarP(&o.Silent, "silent", "s", o.Silent, "Do not show output.")
	fs.BoolVarP(&o.Debug, "debug", "d", o.Debug, "Debug mode.")
	fs.BoolVarP(&o.ListOutdated, "list-outdated", "l", o.ListOutdated, "Generates a list with all outdated agents.")
	fs.IntVarP(&o.ChunkSize, "chunk-size", "c", o.ChunkSize, fmt.Sprintf("Chunk size sending WPK file. Allowed values: [%d - %d]. [Default: %d]", upgrade.MinChunkSize, upgrade.MaxChunkSize, o.Upgrade.DefaultChunkSize))
	fs.IntVarP(&o.Timeout, "timeout", "t", o.Timeout, "Timeout until agent restart is unlocked.")
	fs.StringVarP(&o.File, "file", "f", o.File, "Custom WPK filename.")
	fs.StringVarP(&o.Installer, "execute", "x", o.Installer, fmt.Sprintf("Executable filename in the WPK custom file. [Default: %s]", o.Upgrade.Installer))
	fs.BoolVar(&o.HTTP, "http", o.HTTP, "Uses http protocol instead of https.")
	fs.StringVar(&o.ConfigFile, "config", o.ConfigFile, "Optional YAML file with any of the settings below. Flags take precedence.")

	o.Upgrade.AddFlags(fss.FlagSet("Tuning"))
	o.Mqtt.AddFlags(fss.FlagSet("MQTT"))
	o.S3.AddFlags(fss.FlagSet("S3"))
	o.Database.AddFlags(fss.FlagSet("Database"))
	o.Metrics.AddFlags(fss.FlagSet("Metrics"))
	o.Log.AddFlags(fss.FlagSet("Log"))

	return fss
}

// Complete merges the config file and CPEER_ environment variables into the
// options. Explicit flags win over the environment, which wins over the file.
func (o *UpgradeOptions) Complete(fs *pflag.FlagSet) error {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfg := v.GetString("config"); cfg != "" {
		v.SetConfigFile(cfg)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", cfg, err)
		}
	}

	if err := v.Unmarshal(o); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}

	o.versionSet = v.IsSet("version")
	o.chunkSet = v.IsSet("chunk-size")
	o.timeoutSet = v.IsSet("timeout")

	if o.Silent {
		o.Debug = false
	}
	if o.Debug {
		o.Log.Level = "debug"
	}
	return nil
}

func (o *UpgradeOptions) Validate() error {
	errs := []error{}

	if o.File != "" && (o.Repository != "" || o.versionSet || o.HTTP) {
		errs = append(errs, fmt.Errorf("--file cannot be combined with --repository, --version or --http"))
	}
	if o.File == "" && o.Installer != "" {
		errs = append(errs, fmt.Errorf("--execute requires --file"))
	}

	errs = append(errs, o.Upgrade.Validate()...)
	errs = append(errs, o.Mqtt.Validate()...)
	if o.File != "" {
		errs = append(errs, o.S3.Validate()...)
	}
	errs = append(errs, o.Database.Validate()...)
	errs = append(errs, o.Metrics.Validate()...)
	errs = append(errs, o.Log.Validate()...)

	return utilerrors.NewAggregate(errs)
}

// Config returns the immutable configuration of the upgrade orchestrator.
func (o *UpgradeOptions) Config() (upgrade.Config, error) {
	return o.Upgrade.config()
}

// Request returns the upgrade request described by the operator flags.
func (o *UpgradeOptions) Request() *upgrade.Request {
	req := &upgrade.Request{
		AgentID:       o.AgentID,
		Force:         o.Force,
		RepositoryURL: o.Repository,
		UseHTTP:       o.HTTP,
		FilePath:      o.File,
		Installer:     o.Installer,
	}
	if o.versionSet {
		req.Version = ptr.To(o.Version)
	}
	if o.chunkSet {
		req.ChunkSize = ptr.To(o.ChunkSize)
	}
	if o.timeoutSet {
		req.Timeout = ptr.To(o.Timeout)
	}
	return req
}
