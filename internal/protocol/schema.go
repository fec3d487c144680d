package protocol

import (
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ironsheep/image-filter-server/internal/filters"
)

// Schema returns the JSON Schema a filter list must satisfy: an array of
// objects with a name from the supported kinds and a params object.
// Parametric kinds additionally require a numeric coefficient.
func Schema() *jsonschema.Schema {
	names := kindEnum(filters.Kinds())
	parametric := kindEnum(filters.ParametricKinds())

	return &jsonschema.Schema{
		Title: "filter list",
		Type:  "array",
		Items: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"name", "params"},
			Properties: map[string]*jsonschema.Schema{
				"name":   {Type: "string", Enum: names},
				"params": {Type: "object"},
			},
			If: &jsonschema.Schema{
				Required: []string{"name"},
				Properties: map[string]*jsonschema.Schema{
					"name": {Enum: parametric},
				},
			},
			Then: &jsonschema.Schema{
				Properties: map[string]*jsonschema.Schema{
					"params": {
						Type:     "object",
						Required: []string{filters.CoefficientParam},
						Properties: map[string]*jsonschema.Schema{
							filters.CoefficientParam: {Type: "number"},
						},
					},
				},
			},
		},
	}
}

func kindEnum(kinds []filters.Kind) []any {
	out := make([]any, len(kinds))
	for i, k := range kinds {
		out[i] = k.String()
	}
	return out
}

var (
	resolveOnce sync.Once
	resolved    *jsonschema.Resolved
	resolveErr  error
)

// resolvedSchema resolves Schema once; the result is safe for concurrent
// validation.
func resolvedSchema() (*jsonschema.Resolved, error) {
	resolveOnce.Do(func() {
		resolved, resolveErr = Schema().Resolve(nil)
	})
	return resolved, resolveErr
}
