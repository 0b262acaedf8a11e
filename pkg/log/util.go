package log

import (
	"fmt"

	"go.uber.org/zap"
)

// toFields converts logr-style alternating keys and values into zap fields.
// A zap.Field passes through unchanged and a bare error becomes the "error"
// field. Values are typed by zap.Any, so durations, times and Stringers
// encode natively.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case zap.Field:
			fields = append(fields, v)
			continue
		case error:
			fields = append(fields, zap.Error(v))
			continue
		}

		if i == len(args)-1 {
			fields = append(fields, zap.Any(fmt.Sprintf("arg#%d", i), args[i]))
			break
		}

		key, ok := args[i].(string)
		if !ok || key == "" {
			key = fmt.Sprintf("invalid_key(%v)", args[i])
		}
		fields = append(fields, zap.Any(key, args[i+1]))
		i++
	}
	return fields
}
