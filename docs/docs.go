// Package docs holds the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "tags": ["System"],
                "summary": "Health check",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Healthy", "schema": {"$ref": "#/definitions/models.HealthResponse"}},
                    "503": {"description": "Database unreachable", "schema": {"$ref": "#/definitions/models.HealthResponse"}}
                }
            }
        },
        "/admin/runtime": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["System"],
                "summary": "Orchestrator runtime",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Runtime counters", "schema": {"$ref": "#/definitions/models.RuntimeResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "403": {"description": "Not an admin", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/scans": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Scans"],
                "summary": "List scans",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "default": 1, "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "name": "page_size", "in": "query"},
                    {"enum": ["PENDING", "RUNNING", "COMPLETED", "FAILED", "CANCELLED"], "type": "string", "name": "status", "in": "query"},
                    {"type": "string", "name": "kind", "in": "query"},
                    {"type": "string", "name": "policy_id", "in": "query"},
                    {"type": "string", "name": "owner_id", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Scans", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.ScanResponse"}}},
                    "400": {"description": "Invalid filter", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Scans"],
                "summary": "Create a scan",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.CreateScanRequest"}}
                ],
                "responses": {
                    "202": {"description": "Scan accepted", "schema": {"$ref": "#/definitions/models.ScanResponse"}},
                    "400": {"description": "Invalid target, kind or body", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "503": {"description": "Server is shutting down", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/scans/kinds": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Scans"],
                "summary": "List scan kinds",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Supported scan kinds", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.ScanKindInfo"}}}
                }
            }
        },
        "/scans/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Scans"],
                "summary": "Get a scan",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Scan", "schema": {"$ref": "#/definitions/models.ScanResponse"}},
                    "404": {"description": "Scan not found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Scans"],
                "summary": "Delete a scan",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Scan not found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/scans/{id}/findings": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Scans"],
                "summary": "List scan findings",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"enum": ["INFO", "LOW", "MEDIUM", "HIGH", "CRITICAL"], "type": "string", "name": "min_severity", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Findings", "schema": {"$ref": "#/definitions/models.FindingListResponse"}},
                    "404": {"description": "Scan not found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/scans/{id}/cancel": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Scans"],
                "summary": "Cancel a scan",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Cancelled scan", "schema": {"$ref": "#/definitions/models.ScanResponse"}},
                    "404": {"description": "Scan not found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "409": {"description": "Scan already completed or failed", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/scans/{id}/events": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Scans"],
                "summary": "Stream scan events (SSE)",
                "produces": ["text/event-stream"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "SSE stream of models.ScanEvent", "schema": {"type": "string"}},
                    "404": {"description": "Scan not found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/scans/{id}/ws": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Scans"],
                "summary": "Stream scan events (WebSocket)",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "101": {"description": "Switching protocols", "schema": {"type": "string"}},
                    "404": {"description": "Scan not found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/policies": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Policies"],
                "summary": "List recurrence policies",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "default": 1, "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "name": "page_size", "in": "query"},
                    {"type": "boolean", "name": "active_only", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Policies", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.RecurrencePolicy"}}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Policies"],
                "summary": "Create a recurrence policy",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.CreatePolicyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Policy created", "schema": {"$ref": "#/definitions/models.RecurrencePolicy"}},
                    "400": {"description": "Invalid policy", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/policies/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Policies"],
                "summary": "Get a recurrence policy",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Policy", "schema": {"$ref": "#/definitions/models.RecurrencePolicy"}},
                    "404": {"description": "Policy not found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["Policies"],
                "summary": "Update a recurrence policy",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.UpdatePolicyRequest"}}
                ],
                "responses": {
                    "200": {"description": "Updated policy", "schema": {"$ref": "#/definitions/models.RecurrencePolicy"}},
                    "404": {"description": "Policy not found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Policies"],
                "summary": "Delete a recurrence policy",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Policy not found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.CreateScanRequest": {
            "type": "object",
            "required": ["kind", "target"],
            "properties": {
                "target": {"type": "string", "example": "example.com"},
                "kind": {"type": "string", "example": "subdomain_finder"},
                "parameters": {"type": "object", "additionalProperties": true}
            }
        },
        "models.ScanResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "target": {"type": "string"},
                "kind": {"type": "string"},
                "parameters": {"type": "object", "additionalProperties": true},
                "owner_id": {"type": "string"},
                "policy_id": {"type": "string"},
                "status": {"type": "string", "example": "RUNNING"},
                "progress": {"type": "integer", "example": 40},
                "provider_scan_id": {"type": "string"},
                "provider_target_id": {"type": "string"},
                "error_message": {"type": "string"},
                "error_code": {"type": "string", "example": "ProviderPollError"},
                "created_at": {"type": "string", "format": "date-time"},
                "started_at": {"type": "string", "format": "date-time"},
                "completed_at": {"type": "string", "format": "date-time"}
            }
        },
        "models.ScanKindInfo": {
            "type": "object",
            "properties": {
                "kind": {"type": "string", "example": "port_scan"},
                "tool_id": {"type": "integer", "example": 170},
                "tool_name": {"type": "string", "example": "Port Scanner"}
            }
        },
        "models.Finding": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "scan_id": {"type": "string"},
                "type": {"type": "string", "example": "open_port"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "severity": {"type": "string", "enum": ["INFO", "LOW", "MEDIUM", "HIGH", "CRITICAL"]},
                "details": {"type": "object", "additionalProperties": true},
                "affected_component": {"type": "string"},
                "remediation": {"type": "string"},
                "references": {"type": "array", "items": {"type": "string"}},
                "cve_id": {"type": "string"},
                "cvss_score": {"type": "number"},
                "created_at": {"type": "string", "format": "date-time"}
            }
        },
        "models.FindingSummary": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "critical": {"type": "integer"},
                "high": {"type": "integer"},
                "medium": {"type": "integer"},
                "low": {"type": "integer"},
                "info": {"type": "integer"}
            }
        },
        "models.FindingListResponse": {
            "type": "object",
            "properties": {
                "scan_id": {"type": "string"},
                "findings": {"type": "array", "items": {"$ref": "#/definitions/models.Finding"}},
                "summary": {"$ref": "#/definitions/models.FindingSummary"}
            }
        },
        "models.CreatePolicyRequest": {
            "type": "object",
            "required": ["frequency", "kind", "name", "target"],
            "properties": {
                "name": {"type": "string", "example": "Nightly subdomains"},
                "target": {"type": "string", "example": "example.com"},
                "kind": {"type": "string", "example": "subdomain_finder"},
                "parameters": {"type": "object", "additionalProperties": true},
                "frequency": {"type": "string", "enum": ["ONCE", "DAILY", "WEEKLY", "MONTHLY"]},
                "start_at": {"type": "string", "format": "date-time"},
                "max_runs": {"type": "integer", "minimum": 1}
            }
        },
        "models.UpdatePolicyRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "target": {"type": "string"},
                "parameters": {"type": "object", "additionalProperties": true},
                "frequency": {"type": "string", "enum": ["ONCE", "DAILY", "WEEKLY", "MONTHLY"]},
                "next_fire_at": {"type": "string", "format": "date-time"},
                "active": {"type": "boolean"},
                "max_runs": {"type": "integer", "minimum": 1}
            }
        },
        "models.RecurrencePolicy": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "target": {"type": "string"},
                "kind": {"type": "string"},
                "parameters": {"type": "object", "additionalProperties": true},
                "frequency": {"type": "string"},
                "next_fire_at": {"type": "string", "format": "date-time"},
                "last_fire_at": {"type": "string", "format": "date-time"},
                "active": {"type": "boolean"},
                "run_count": {"type": "integer"},
                "max_runs": {"type": "integer"},
                "owner_id": {"type": "string"},
                "last_scan_id": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "models.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"},
                "version": {"type": "string"},
                "database": {"type": "string", "example": "ok"},
                "scheduler": {"type": "boolean"},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "models.RuntimeResponse": {
            "type": "object",
            "properties": {
                "active_scans": {"type": "integer", "example": 3},
                "scheduled_policies": {"type": "integer", "example": 12},
                "dropped_events": {"type": "integer", "example": 0},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "models.ErrorInfo": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "NOT_FOUND"},
                "message": {"type": "string"},
                "details": {}
            }
        },
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": false},
                "error": {"$ref": "#/definitions/models.ErrorInfo"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and the access token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Cobytes Scan Orchestrator API",
	Description:      "Creates security scans against the Cobytes provider, tracks them to completion and streams their progress.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
