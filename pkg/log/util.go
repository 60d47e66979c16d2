package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// toFields turns the variadic arguments of a log call into zap fields.
// zap.Field and error values stand alone; everything else is read as
// key/value pairs. A trailing value or a non-string key is kept under a
// synthetic key instead of being dropped.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case zap.Field:
			fields = append(fields, a)
			continue
		case error:
			fields = append(fields, zap.Error(a))
			continue
		}

		if i == len(args)-1 {
			fields = append(fields, zap.Any(fmt.Sprintf("arg#%d", i), args[i]))
			break
		}

		key, val := args[i], args[i+1]
		i++
		name, ok := key.(string)
		if !ok {
			fields = append(fields, zap.Any(fmt.Sprintf("invalid_key_%d", i/2), map[string]any{
				"key":   key,
				"value": val,
			}))
			continue
		}
		fields = append(fields, toField(name, val))
	}
	return fields
}

func toField(key string, val any) zap.Field {
	switch v := val.(type) {
	case error:
		return zap.NamedError(key, v)
	case time.Duration:
		return zap.Duration(key, v)
	case time.Time:
		return zap.Time(key, v)
	case []byte:
		return zap.Binary(key, v)
	case fmt.Stringer:
		// device states and MAC addresses print as text
		return zap.Stringer(key, v)
	default:
		return zap.Any(key, v)
	}
}
