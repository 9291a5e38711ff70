package workflow

import (
	"encoding/json"
	"fmt"
	"maps"
)

// mergePayload overlays fields onto a JSON object payload.
func mergePayload(raw json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	base := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &base); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if base == nil {
			base = map[string]any{}
		}
	}
	maps.Copy(base, fields)
	out, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return out, nil
}
