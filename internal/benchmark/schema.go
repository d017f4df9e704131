package benchmark

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// datasetSchema accepts an array of objects. Elements without a question or
// answer pass validation and are skipped later.
var datasetSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{"type": "string"},
			"answer":   map[string]any{"type": "string"},
			"context":  map[string]any{"type": []string{"string", "null"}},
		},
	},
}

// storeSchema is the shape bench_results.json must have before it is decoded.
var storeSchema = map[string]any{
	"type":     "object",
	"required": []string{"tests"},
	"properties": map[string]any{
		"tests": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"id", "modelName", "taskType", "numberOfExamples"},
				"properties": map[string]any{
					"id":               map[string]any{"type": "string"},
					"modelName":        map[string]any{"type": "string"},
					"taskType":         map[string]any{"type": "string"},
					"numberOfExamples": map[string]any{"type": "integer", "minimum": 1},
					"results":          map[string]any{"type": []string{"array", "null"}},
					"startedAt":        map[string]any{"type": "number"},
					"endedAt":          map[string]any{"type": "number"},
				},
			},
		},
	},
}

var (
	datasetSchemaLoader = gojsonschema.NewGoLoader(datasetSchema)
	storeSchemaLoader   = gojsonschema.NewGoLoader(storeSchema)
)

// validate checks doc against schema and joins every violation into one error.
func validate(schema gojsonschema.JSONLoader, doc []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("JSON validation failed: %s", strings.Join(errs, ", "))
}
