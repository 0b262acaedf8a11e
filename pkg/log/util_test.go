package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestToFields(t *testing.T) {
	now := time.Now()
	err := errors.New("boom")

	tests := []struct {
		name  string
		input []any
		want  int
	}{
		{"empty input", []any{}, 0},
		{"string-int-bool", []any{"a", "x", "b", 123, "c", true}, 3},
		{"time type", []any{"t", now}, 1},
		{"time pointer", []any{"t", &now}, 1},
		{"duration", []any{"interval", 2 * time.Second}, 1},
		{"error only", []any{err}, 1},
		{"multiple errors", []any{err, errors.New("again")}, 2},
		{"mixed field types", []any{"msg", "ok", zap.String("x", "y"), "num", 42}, 3},
		{"odd number of args", []any{"key1", "val1", "key2"}, 2},
		{"non-string key", []any{123, "value", true, 99}, 2},
		{"nil values", []any{"a", nil, "b", (*int)(nil)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.input...)
			require.Len(t, fields, tt.want)

			for _, f := range fields {
				assert.NotEmpty(t, f.Key, "field has empty key: %+v", f)
			}
		})
	}
}

func TestToFieldsTypes(t *testing.T) {
	now := time.Now()
	var missing *time.Time

	fields := toFields(
		errors.New("boom"),
		"interval", 2*time.Second,
		"heartbeat", now,
		"baseline", missing,
		123, "value",
		"trailing",
	)
	require.Len(t, fields, 6)

	assert.Equal(t, "error", fields[0].Key)
	assert.Equal(t, zapcore.ErrorType, fields[0].Type)
	assert.Equal(t, zapcore.DurationType, fields[1].Type)
	assert.Equal(t, zapcore.TimeType, fields[2].Type)
	assert.Equal(t, "baseline", fields[3].Key)
	assert.Equal(t, "invalid_key(123)", fields[4].Key)
	assert.Equal(t, "arg#9", fields[5].Key)
}

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	assert.Empty(t, opts.Validate())

	opts.Level = "loud"
	opts.Format = "xml"
	assert.Len(t, opts.Validate(), 2)
}

func TestNewLoggerWritesToOutputPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upgrade.log")

	opts := NewOptions()
	opts.Level = "info"
	opts.Format = "json"
	opts.OutputPaths = []string{path}

	logger := NewLogger(opts).WithName("poller").WithValues("agent", "001")
	logger.Debug("hidden")
	logger.Info("heartbeat advanced", "polls", 3, "interval", 2*time.Second)
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"heartbeat advanced"`)
	assert.Contains(t, string(data), `"agent":"001"`)
	assert.Contains(t, string(data), `"logger":"poller"`)
	assert.Contains(t, string(data), `"interval":"2s"`)
	assert.NotContains(t, string(data), "hidden")
}
