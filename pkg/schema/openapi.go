package schema

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAPIInfo contains API metadata for the generated specification.
type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// OpenAPIGenerator projects the reflected schema into an OpenAPI 3.1
// document: one collection path per Collection plus a record path for
// collections keyed by a single column. The projection is read-only; it is
// how the outer framework generates API documentation.
type OpenAPIGenerator struct {
	db      *Db
	baseURL string
	info    OpenAPIInfo
}

// NewOpenAPIGenerator creates a generator over a started Db.
func NewOpenAPIGenerator(db *Db, baseURL string, info OpenAPIInfo) *OpenAPIGenerator {
	return &OpenAPIGenerator{
		db:      db,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		info:    info,
	}
}

// ServeHTTP implements http.Handler to serve the specification.
func (g *OpenAPIGenerator) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(g.GenerateSpecification())
}

// GenerateSpecification builds the complete document.
func (g *OpenAPIGenerator) GenerateSpecification() map[string]any {
	paths := make(map[string]any)
	schemas := make(map[string]any)

	for _, c := range g.db.Collections() {
		if c.Excluded() {
			continue
		}
		paths["/"+c.Name()] = g.buildCollectionOperations(c)
		// Record routes exist only for single-column keys; composite-key
		// collections are served through the collection routes.
		if ri := c.ResourceIndex(); ri != nil && len(ri.Properties()) == 1 {
			paths[g.buildRecordPath(c, ri)] = g.buildRecordOperations(c, ri)
		}
		schemas[c.Name()] = g.buildCollectionSchema(c)
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       g.info.Title,
			"description": g.info.Description,
			"version":     g.info.Version,
		},
		"servers": []map[string]any{
			{"url": g.baseURL, "description": "API Server"},
		},
		"paths":      paths,
		"components": map[string]any{"schemas": schemas},
	}
}

func (g *OpenAPIGenerator) buildCollectionOperations(c *Collection) map[string]any {
	ref := map[string]string{"$ref": "#/components/schemas/" + c.Name()}
	return map[string]any{
		"get": map[string]any{
			"summary":    fmt.Sprintf("List %s", c.Name()),
			"parameters": g.buildQueryParameters(c),
			"responses": map[string]any{
				"200": map[string]any{
					"description": "Success",
					"content": map[string]any{
						"application/json": map[string]any{
							"schema": map[string]any{"type": "array", "items": ref},
						},
					},
				},
				"400": map[string]string{"description": "Bad Request"},
			},
		},
		"post": map[string]any{
			"summary": fmt.Sprintf("Create or update %s records", c.Name()),
			"requestBody": map[string]any{
				"content":  map[string]any{"application/json": map[string]any{"schema": ref}},
				"required": true,
			},
			"responses": map[string]any{
				"201": map[string]any{
					"description": "Created",
					"content":     map[string]any{"application/json": map[string]any{"schema": ref}},
				},
				"400": map[string]string{"description": "Bad Request"},
				"409": map[string]string{"description": "Conflict"},
			},
		},
	}
}

func (g *OpenAPIGenerator) buildRecordOperations(c *Collection, ri *Index) map[string]any {
	ref := map[string]string{"$ref": "#/components/schemas/" + c.Name()}
	params := g.buildKeyParameters(c, ri)
	return map[string]any{
		"get": map[string]any{
			"summary":    fmt.Sprintf("Get one %s record", c.Name()),
			"parameters": params,
			"responses": map[string]any{
				"200": map[string]any{
					"description": "Success",
					"content":     map[string]any{"application/json": map[string]any{"schema": ref}},
				},
				"404": map[string]string{"description": "Not Found"},
			},
		},
		"patch": map[string]any{
			"summary":    fmt.Sprintf("Update one %s record", c.Name()),
			"parameters": params,
			"requestBody": map[string]any{
				"content":  map[string]any{"application/json": map[string]any{"schema": ref}},
				"required": true,
			},
			"responses": map[string]any{
				"200": map[string]string{"description": "Success"},
				"404": map[string]string{"description": "Not Found"},
			},
		},
		"delete": map[string]any{
			"summary":    fmt.Sprintf("Delete one %s record", c.Name()),
			"parameters": params,
			"responses": map[string]any{
				"200": map[string]string{"description": "Success"},
				"404": map[string]string{"description": "Not Found"},
			},
		},
	}
}

func (g *OpenAPIGenerator) buildRecordPath(c *Collection, ri *Index) string {
	path := "/" + c.Name()
	for _, p := range ri.Properties() {
		path += "/{" + p.Name() + "}"
	}
	return path
}

func (g *OpenAPIGenerator) buildQueryParameters(c *Collection) []map[string]any {
	params := []map[string]any{
		{
			"name": "limit", "in": "query",
			"description": "Limit the number of returned records",
			"schema":      map[string]string{"type": "integer"},
		},
		{
			"name": "page", "in": "query",
			"description": "1-based page number",
			"schema":      map[string]string{"type": "integer"},
		},
		{
			"name": "sort", "in": "query",
			"description": "Comma-separated sort properties, - prefix for descending",
			"schema":      map[string]string{"type": "string"},
		},
	}
	for _, p := range c.Properties() {
		params = append(params, map[string]any{
			"name": p.Name(), "in": "query",
			"description": "Filter by " + p.Name(),
			"schema":      g.propertySchema(p),
		})
	}
	return params
}

func (g *OpenAPIGenerator) buildKeyParameters(c *Collection, ri *Index) []map[string]any {
	var params []map[string]any
	for _, p := range ri.Properties() {
		params = append(params, map[string]any{
			"name": p.Name(), "in": "path", "required": true,
			"description": "Key property " + p.Name(),
			"schema":      g.propertySchema(p),
		})
	}
	return params
}

func (g *OpenAPIGenerator) buildCollectionSchema(c *Collection) map[string]any {
	properties := make(map[string]any)
	var required []string
	for _, p := range c.Properties() {
		properties[p.Name()] = g.propertySchema(p)
		if !p.Nullable() {
			required = append(required, p.Name())
		}
	}

	// Relationships surface as read-only link descriptors.
	for _, r := range c.Relationships() {
		properties[r.Name()] = map[string]any{
			"type":     "string",
			"format":   "uri-reference",
			"readOnly": true,
			"description": fmt.Sprintf("%s relationship to %s",
				strings.ToLower(string(r.Type())), r.Related().Name()),
		}
	}

	out := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func (g *OpenAPIGenerator) propertySchema(p *Property) map[string]any {
	switch p.Type() {
	case TypeNumber:
		return map[string]any{"type": "number"}
	case TypeBoolean:
		return map[string]any{"type": "boolean"}
	case TypeDate:
		return map[string]any{"type": "string", "format": "date-time"}
	case TypeBinary:
		return map[string]any{"type": "string", "format": "byte"}
	case TypeJSON:
		return map[string]any{"type": "object"}
	case TypeArray:
		return map[string]any{"type": "array", "items": map[string]any{}}
	default:
		return map[string]any{"type": "string"}
	}
}
