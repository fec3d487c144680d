package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/ironsheep/image-filter-server/internal/filters"
)

// ParseFilterList decodes and validates a filter-list message.
//
// Malformed JSON yields an *Error with StatusInvalidJSON; a document that
// does not match Schema yields StatusInvalidJSONFormat. On success every
// returned Spec names a supported kind and parametric kinds carry their
// coefficient. Non-numeric params are not carried into the Spec.
func ParseFilterList(data []byte) ([]filters.Spec, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Status: StatusInvalidJSON, Err: err}
	}

	rs, err := resolvedSchema()
	if err != nil {
		return nil, fmt.Errorf("resolve filter list schema: %w", err)
	}
	if err := rs.Validate(doc); err != nil {
		return nil, &Error{Status: StatusInvalidJSONFormat, Err: err}
	}

	// The schema has fixed the shape, so these assertions hold.
	items := doc.([]any)
	specs := make([]filters.Spec, len(items))
	for i, item := range items {
		obj := item.(map[string]any)
		kind, err := filters.ParseKind(obj["name"].(string))
		if err != nil {
			return nil, &Error{Status: StatusInvalidJSONFormat, Err: err}
		}
		params := map[string]float64{}
		for k, v := range obj["params"].(map[string]any) {
			if n, ok := v.(float64); ok {
				params[k] = n
			}
		}
		specs[i] = filters.Spec{Kind: kind, Params: params}
	}
	return specs, nil
}
