package api

import (
	"net/http"
	"strings"
)

type route struct {
	method      string
	path        string
	summary     string
	scope       string
	requestBody string
	responses   map[string]string
}

var routes = []route{
	{method: "get", path: "/healthz", summary: "Service health",
		responses: map[string]string{"200": "Healthy"}},
	{method: "post", path: "/open", summary: "Open files in hex view", scope: "hex:rw", requestBody: "OpenRequest",
		responses: map[string]string{"200": "Per-path results", "400": "Bad request"}},
	{method: "get", path: "/sessions", summary: "List open documents", scope: "hex:ro",
		responses: map[string]string{"200": "Sessions"}},
	{method: "get", path: "/sessions/{id}", summary: "Get a document with its dump", scope: "hex:ro",
		responses: map[string]string{"200": "Session", "404": "Unknown session"}},
	{method: "post", path: "/sessions/{id}/activate", summary: "Activate a document; first activation generates the dump", scope: "hex:rw",
		responses: map[string]string{"200": "Session", "404": "Unknown session", "409": "Generation in flight", "503": "xxd could not be started"}},
	{method: "post", path: "/sessions/{id}/dump", summary: "Regenerate the dump with new options", scope: "hex:rw", requestBody: "DumpRequest",
		responses: map[string]string{"200": "Session", "404": "Unknown session", "409": "Generation in flight", "502": "xxd failed", "503": "xxd could not be started", "504": "Generation timed out"}},
	{method: "delete", path: "/sessions/{id}", summary: "Close a document", scope: "hex:rw",
		responses: map[string]string{"204": "Closed", "404": "Unknown session"}},
	{method: "get", path: "/history", summary: "Recent generations", scope: "hex:ro",
		responses: map[string]string{"200": "History entries"}},
	{method: "get", path: "/events", summary: "Lifecycle events (server-sent events), filtered by ?session= and ?type=", scope: "events:ro",
		responses: map[string]string{"200": "text/event-stream"}},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for every route.
func buildOpenAPIDoc() map[string]any {
	paths := map[string]any{}

	for _, rt := range routes {
		responses := map[string]any{}
		for code, desc := range rt.responses {
			responses[code] = map[string]any{"description": desc}
		}

		operation := map[string]any{
			"operationId": operationID(rt),
			"summary":     rt.summary,
			"responses":   responses,
		}
		if rt.scope != "" {
			responses["401"] = map[string]any{"description": "Missing or invalid token"}
			responses["403"] = map[string]any{"description": "Insufficient scope"}
			operation["security"] = []any{map[string]any{"BearerAuth": []string{rt.scope}}}
		}
		if rt.requestBody != "" {
			operation["requestBody"] = map[string]any{
				"required": rt.requestBody == "OpenRequest",
				"content": map[string]any{
					"application/json": map[string]any{
						"schema": map[string]any{"$ref": "#/components/schemas/" + rt.requestBody},
					},
				},
			}
		}

		item, _ := paths[rt.path].(map[string]any)
		if item == nil {
			item = map[string]any{}
			paths[rt.path] = item
		}
		item[rt.method] = operation
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "hexview",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
			"schemas": map[string]any{
				"OpenRequest": map[string]any{
					"type":     "object",
					"required": []string{"paths"},
					"properties": map[string]any{
						"paths": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
				},
				"DumpRequest": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"row_bytes":     map[string]any{"type": "integer", "minimum": 1, "maximum": 256},
						"col_bytes":     map[string]any{"type": "integer", "minimum": 1, "maximum": 256},
						"offset":        map[string]any{"type": "integer", "minimum": 0},
						"strip_offsets": map[string]any{"type": "boolean"},
					},
				},
			},
		},
	}
}

func operationID(rt route) string {
	name := strings.NewReplacer("/", "_", "{", "", "}", "").Replace(strings.TrimPrefix(rt.path, "/"))
	return rt.method + "_" + name
}

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}
