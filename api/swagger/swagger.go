package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Promotion API",
        "description": "Staging to production promotion workflow with dual approval, conflict resolution, rollback snapshots and data lineage",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and session info"},
        {"name": "Promotions", "description": "Promotion request lifecycle"},
        {"name": "Lineage", "description": "Append-only data lineage trail"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user info",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/promotions": {
            "get": {
                "tags": ["Promotions"],
                "summary": "List promotion requests",
                "parameters": [
                    {"name": "organizationId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "resourceType", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Promotions"],
                "summary": "Submit a promotion request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePromotionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error"}
                }
            }
        },
        "/promotions/{id}": {
            "get": {
                "tags": ["Promotions"],
                "summary": "Promotion request detail",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/promotions/{id}/approve": {
            "post": {
                "tags": ["Promotions"],
                "summary": "Record an approval",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApprovePromotionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state or concurrent update"}
                }
            }
        },
        "/promotions/{id}/reject": {
            "post": {
                "tags": ["Promotions"],
                "summary": "Reject a promotion request",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectPromotionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state"}
                }
            }
        },
        "/promotions/{id}/conflicts/{conflictId}/resolve": {
            "post": {
                "tags": ["Promotions"],
                "summary": "Resolve a detected conflict",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "conflictId", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolveConflictRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Conflict not found"}
                }
            }
        },
        "/promotions/{id}/execute": {
            "post": {
                "tags": ["Promotions"],
                "summary": "Execute a fully approved promotion",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not fully approved or unresolved conflicts"},
                    "500": {"description": "Execution failed"}
                }
            }
        },
        "/promotions/{id}/rollback": {
            "post": {
                "tags": ["Promotions"],
                "summary": "Roll back a completed promotion",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Snapshot retention elapsed"}
                }
            }
        },
        "/lineage/{collection}/{id}": {
            "get": {
                "tags": ["Lineage"],
                "summary": "Lineage history for one document",
                "parameters": [
                    {"name": "collection", "in": "path", "type": "string", "required": true},
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lineage/organizations/{orgId}": {
            "get": {
                "tags": ["Lineage"],
                "summary": "Lineage history for an organization",
                "parameters": [
                    {"name": "orgId", "in": "path", "type": "string", "required": true},
                    {"name": "action", "in": "query", "type": "string"},
                    {"name": "startDate", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "endDate", "in": "query", "type": "string", "format": "date-time"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreatePromotionRequest": {
            "type": "object",
            "required": ["organizationId", "resourceType", "resourceId", "changes"],
            "properties": {
                "organizationId": {"type": "string"},
                "resourceType": {"type": "string", "enum": ["agent", "conversation", "context_source", "user"]},
                "resourceId": {"type": "string"},
                "resourceName": {"type": "string"},
                "changes": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/Change"}
                }
            }
        },
        "Change": {
            "type": "object",
            "properties": {
                "field": {"type": "string"},
                "oldValue": {"type": "object"},
                "newValue": {"type": "object"}
            }
        },
        "ApprovePromotionRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            }
        },
        "RejectPromotionRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "ResolveConflictRequest": {
            "type": "object",
            "required": ["strategy"],
            "properties": {
                "strategy": {"type": "string", "enum": ["accept-staging", "keep-production", "manual"]},
                "mergedValue": {"type": "object"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
