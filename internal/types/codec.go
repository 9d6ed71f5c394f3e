package types

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JSON column helpers. GORM's datatypes.JSON is raw bytes; these keep the
// encode/decode in one place so save paths and retrieval agree on layout.

func MarshalJSONColumn(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func UnmarshalStrings(col datatypes.JSON) []string {
	if len(col) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(col, &out); err != nil {
		return nil
	}
	return out
}

func UnmarshalFloats(col datatypes.JSON) []float32 {
	if len(col) == 0 {
		return nil
	}
	var out []float32
	if err := json.Unmarshal(col, &out); err != nil {
		return nil
	}
	return out
}

func UnmarshalFloatMatrix(col datatypes.JSON) [][]float32 {
	if len(col) == 0 {
		return nil
	}
	var out [][]float32
	if err := json.Unmarshal(col, &out); err != nil {
		return nil
	}
	return out
}

func UnmarshalUUIDs(col datatypes.JSON) []uuid.UUID {
	if len(col) == 0 {
		return nil
	}
	var raw []string
	if err := json.Unmarshal(col, &raw); err != nil {
		return nil
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func UnmarshalRawMessages(col datatypes.JSON) []RawMessage {
	if len(col) == 0 {
		return nil
	}
	var out []RawMessage
	if err := json.Unmarshal(col, &out); err != nil {
		return nil
	}
	return out
}
