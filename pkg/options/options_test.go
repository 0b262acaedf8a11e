package options

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	groups := map[string]IOptions{
		"mqtt":     NewMqttOptions(),
		"s3":       NewS3Options(),
		"database": NewDatabaseOptions(),
		"metrics":  NewMetricsOptions(),
	}

	for name, o := range groups {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, o.Validate())
		})
	}
}

func TestMqttOptionsValidate(t *testing.T) {
	o := NewMqttOptions()
	o.Broker = ""
	o.TopicRoot = ""
	o.AckTimeout = 0

	assert.Len(t, o.Validate(), 3)
}

func TestMqttOptionsFlags(t *testing.T) {
	o := NewMqttOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--mqtt.broker=tcp://localhost:1883",
		"--mqtt.ack-timeout=5s",
		"--mqtt.keep-alive=20s",
	}))

	cfg := o.ToClientConfig()
	assert.Equal(t, "tcp://localhost:1883", cfg.BrokerURL)
	assert.Equal(t, uint16(20), cfg.KeepAlive)
	assert.Equal(t, 5*time.Second, o.AckTimeout)
}

func TestMetricsOptionsValidate(t *testing.T) {
	o := NewMetricsOptions()
	o.PushGateway = "not a url"
	assert.Len(t, o.Validate(), 1)

	o.PushGateway = "http://pushgateway:9091"
	assert.Empty(t, o.Validate())
}

func TestDatabaseOptionsValidate(t *testing.T) {
	o := NewDatabaseOptions()
	o.Path = ""
	o.BusyTimeout = -time.Second
	assert.Len(t, o.Validate(), 2)
}
