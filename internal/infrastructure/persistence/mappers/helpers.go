package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// MarshalMetadata encodes entity metadata; an empty map is stored as NULL.
func MarshalMetadata(metadata map[string]interface{}) (datatypes.JSON, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(data datatypes.JSON) (map[string]interface{}, error) {
	metadata := make(map[string]interface{})
	if len(data) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// mapSlice converts every element, reporting the ID of the first one that fails.
func mapSlice[S any, D any](items []S, convert func(S) (D, error), idOf func(S) uint) ([]D, error) {
	result := make([]D, 0, len(items))
	for _, item := range items {
		converted, err := convert(item)
		if err != nil {
			return nil, fmt.Errorf("failed to map item %d: %w", idOf(item), err)
		}
		result = append(result, converted)
	}
	return result, nil
}
