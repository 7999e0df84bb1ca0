package command

import (
	"encoding/json"
	"fmt"
)

// BuildMessage renders the outbound command.
//
// Object payloads are spread after "action", so a payload key named
// "action" wins. Any other non-nil payload, including 0 and false, is sent
// as "value".
func BuildMessage(action string, payload any) ([]byte, error) {
	msg := map[string]any{"action": action}

	switch p := payload.(type) {
	case nil:
	case map[string]any:
		for k, v := range p {
			msg[k] = v
		}
	default:
		msg["value"] = p
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}
	return b, nil
}
