package boundary

import (
	"fmt"
)

// decision is the tagged form of the model's reply.
type decision struct {
	Kind     Status
	EndIndex int
	Subject  string
	Summary  string
}

// parseDecision validates the structured reply. Anything malformed is an
// error; the detector maps parse errors to wait so the state machine stays
// total.
func parseDecision(obj map[string]any) (decision, error) {
	rawKind, ok := obj["decision"].(string)
	if !ok {
		return decision{}, fmt.Errorf("decision field missing or not a string")
	}

	switch Status(rawKind) {
	case StatusContinue:
		return decision{Kind: StatusContinue}, nil
	case StatusWait:
		return decision{Kind: StatusWait}, nil
	case StatusBoundary:
	default:
		return decision{}, fmt.Errorf("unknown decision %q", rawKind)
	}

	endIdx, err := intField(obj, "end_index")
	if err != nil {
		return decision{}, err
	}
	if endIdx < 0 {
		return decision{}, fmt.Errorf("end_index %d negative", endIdx)
	}

	d := decision{Kind: StatusBoundary, EndIndex: endIdx}
	if s, ok := obj["subject"].(string); ok {
		d.Subject = s
	}
	if s, ok := obj["summary"].(string); ok {
		d.Summary = s
	}
	return d, nil
}

func intField(obj map[string]any, key string) (int, error) {
	switch v := obj[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%s field missing or not a number", key)
	}
}
