package filter

import (
	"github.com/xeipuuv/gojsonschema"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// bsonTypes maps the bsonType keyword onto JSON Schema types.
var bsonTypes = map[string]string{
	"double":  "number",
	"decimal": "number",
	"number":  "number",
	"int":     "integer",
	"long":    "integer",
	"string":  "string",
	"object":  "object",
	"array":   "array",
	"bool":    "boolean",
	"null":    "null",
}

func parseJSONSchema(arg value.Value) (Node, error) {
	d, ok := arg.AsDocument()
	if !ok {
		return nil, queryerr.Malformed(nil, "$jsonSchema", "expected a document, got %s", arg.Kind())
	}
	plain := translateBSONType(value.ToPlain(arg))
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(plain))
	if err != nil {
		return nil, queryerr.Malformed(nil, "$jsonSchema", "invalid schema: %v", err)
	}
	return JSONSchema{Source: d, schema: schema}, nil
}

// translateBSONType rewrites every "bsonType" keyword into the
// equivalent "type" keyword so a standard validator understands it.
func translateBSONType(x any) any {
	switch t := x.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			if k == "bsonType" {
				out["type"] = mapBSONType(v)
				continue
			}
			out[k] = translateBSONType(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = translateBSONType(v)
		}
		return out
	}
	return x
}

func mapBSONType(v any) any {
	switch t := v.(type) {
	case string:
		if mapped, ok := bsonTypes[t]; ok {
			return mapped
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = mapBSONType(item)
		}
		return out
	}
	return v
}

func matchJSONSchema(s JSONSchema, doc value.Document) (bool, error) {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(value.DocumentToMap(doc)))
	if err != nil {
		return false, queryerr.Evaluation(nil, "$jsonSchema", "%v", err)
	}
	return result.Valid(), nil
}
