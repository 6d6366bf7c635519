package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RPC params and event payloads routinely carry whole file bodies. Debug
// logging keeps the keys but caps string values so one FilesCreate call
// cannot dump a megabyte into the log.
const maxLoggedValueLen = 256

func TrimValue(value string) string {
	if len(value) <= maxLoggedValueLen {
		return value
	}
	return fmt.Sprintf("%s... (%d bytes)", value[:maxLoggedValueLen], len(value))
}

func TrimAny(value any) any {
	switch typed := value.(type) {
	case string:
		return TrimValue(typed)
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, val := range typed {
			out[key] = TrimAny(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(typed))
		for key, val := range typed {
			out[key] = TrimValue(val)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, val := range typed {
			out[i] = TrimAny(val)
		}
		return out
	case []string:
		out := make([]string, len(typed))
		for i, val := range typed {
			out[i] = TrimValue(val)
		}
		return out
	default:
		return value
	}
}

func TrimJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return TrimValue(strings.TrimSpace(string(raw)))
	}
	return TrimAny(payload)
}
