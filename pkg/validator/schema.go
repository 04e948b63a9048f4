package validator

// graphSchema is the structural contract a repaired candidate must satisfy
// before it is decoded into models.Graph.
var graphSchema = map[string]any{
	"$schema":  "http://json-schema.org/draft-07/schema#",
	"type":     "object",
	"required": []any{"name", "nodes", "connections", "settings", "active", "versionId"},
	"properties": map[string]any{
		"name":      map[string]any{"type": "string", "minLength": 1},
		"active":    map[string]any{"type": "boolean"},
		"versionId": map[string]any{"type": "string", "minLength": 1},
		"settings":  map[string]any{"type": "object"},
		"nodes": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    nodeSchema,
		},
		"connections": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type": "object",
				"additionalProperties": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":  "array",
						"items": edgeSchema,
					},
				},
			},
		},
	},
}

var nodeSchema = map[string]any{
	"type":     "object",
	"required": []any{"id", "name", "type", "typeVersion", "position", "parameters"},
	"properties": map[string]any{
		"id":          map[string]any{"type": "string", "minLength": 1},
		"name":        map[string]any{"type": "string", "minLength": 1},
		"type":        map[string]any{"type": "string", "minLength": 1},
		"typeVersion": map[string]any{"type": "number", "exclusiveMinimum": 0},
		"position": map[string]any{
			"type":     "array",
			"minItems": 2,
			"maxItems": 2,
			"items":    map[string]any{"type": "number"},
		},
		"parameters": map[string]any{"type": "object"},
		"credentials": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type":     "object",
				"required": []any{"id"},
				"properties": map[string]any{
					"id":   map[string]any{"type": "string"},
					"name": map[string]any{"type": "string"},
				},
			},
		},
	},
}

var edgeSchema = map[string]any{
	"type":     "object",
	"required": []any{"node", "type", "index"},
	"properties": map[string]any{
		"node":  map[string]any{"type": "string", "minLength": 1},
		"type":  map[string]any{"type": "string", "minLength": 1},
		"index": map[string]any{"type": "integer", "minimum": 0},
	},
}
