package options

import (
	"fmt"
	"net/url"

	"github.com/spf13/pflag"
)

var _ IOptions = (*MetricsOptions)(nil)

// MetricsOptions controls where the attempt metrics are pushed when the process exits.
type MetricsOptions struct {
	// PushGateway is the Prometheus Pushgateway URL. Empty disables pushing.
	PushGateway string `json:"pushgateway" mapstructure:"pushgateway"`

	// Job is the job label used for the pushed group.
	Job string `json:"job" mapstructure:"job"`
}

// NewMetricsOptions creates a MetricsOptions object with default parameters.
func NewMetricsOptions() *MetricsOptions {
	return &MetricsOptions{
		Job: "cpeer_agent_upgrade",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MetricsOptions) Validate() []error {
	if o == nil || o.PushGateway == "" {
		return nil
	}

	errors := []error{}

	if _, err := url.ParseRequestURI(o.PushGateway); err != nil {
		errors = append(errors, fmt.Errorf("--metrics.pushgateway is not a valid url: %w", err))
	}
	if o.Job == "" {
		errors = append(errors, fmt.Errorf("--metrics.job must not be empty"))
	}

	return errors
}

// AddFlags adds flags for MetricsOptions to the specified FlagSet.
func (o *MetricsOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.PushGateway, "metrics.pushgateway", o.PushGateway, "Prometheus Pushgateway URL; metrics are not pushed when empty.")
	fs.StringVar(&o.Job, "metrics.job", o.Job, "Job label of the pushed metrics group.")
}
