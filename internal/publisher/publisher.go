// Package publisher defines how stage run summaries are announced.
package publisher

import (
	"encoding/json"
	"fmt"
)

// Attributed payloads contribute message attributes, such as the run ID,
// alongside their JSON body.
type Attributed interface {
	Attributes() map[string]string
}

// Encode marshals payload and collects its attributes.
func Encode(payload any) ([]byte, map[string]string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	attrs := map[string]string{"content-type": "application/json"}
	if a, ok := payload.(Attributed); ok {
		for k, v := range a.Attributes() {
			attrs[k] = v
		}
	}
	return data, attrs, nil
}
