// Package api holds the swagger document served at /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs/api
package api

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "termsOfService": "http://swagger.io/terms/",
        "contact": {
            "name": "API Support",
            "url": "https://github.com/localnerve/proposaldb",
            "email": "info@localnerve.com"
        },
        "license": {
            "name": "AGPL-3.0",
            "url": "https://www.gnu.org/licenses/agpl-3.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.HealthCheckResult"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/services.HealthCheckResult"}}
                }
            }
        },
        "/drafts": {
            "post": {
                "security": [{"CookieAuth": []}],
                "description": "Assign a canonical id to a new draft proposal",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Drafts"],
                "summary": "Create a draft",
                "parameters": [
                    {"description": "Draft request", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateDraftRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/services.Draft"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/utils.ErrorResponseStruct"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/utils.ErrorResponseStruct"}}
                }
            }
        },
        "/drafts/{id}/event-type": {
            "patch": {
                "security": [{"CookieAuth": []}],
                "description": "Unknown event types clear the selection and move the draft to orgInfo; the response carries a warning",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Drafts"],
                "summary": "Select the event type of a draft",
                "parameters": [
                    {"type": "string", "description": "Proposal ID", "name": "id", "in": "path", "required": true},
                    {"description": "Event type", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.EventTypeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Draft"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/utils.ErrorResponseStruct"}}
                }
            }
        },
        "/proposals/section/{section}": {
            "post": {
                "security": [{"CookieAuth": []}],
                "description": "Save one wizard section; JSON or multipart with files",
                "consumes": ["application/json", "multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Proposals"],
                "summary": "Save a section",
                "parameters": [
                    {"type": "string", "description": "Section", "name": "section", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SectionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/utils.ErrorResponseStruct"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/utils.ErrorResponseStruct"}}
                }
            }
        },
        "/proposals/{id}": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Proposals"],
                "summary": "Read the merged proposal",
                "parameters": [
                    {"type": "string", "description": "Proposal ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.MergedProposal"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/utils.ErrorResponseStruct"}}
                }
            },
            "post": {
                "security": [{"CookieAuth": []}],
                "description": "Status transitions addressed as {id}:submit, {id}:review and {id}:reopen",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Proposals"],
                "summary": "Change the proposal status",
                "parameters": [
                    {"type": "string", "description": "Proposal ID with verb", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Transition"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/utils.ErrorResponseStruct"}}
                }
            },
            "delete": {
                "security": [{"CookieAuth": []}],
                "tags": ["Proposals"],
                "summary": "Delete a proposal and its attachments",
                "parameters": [
                    {"type": "string", "description": "Proposal ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/utils.ErrorResponseStruct"}}
                }
            }
        },
        "/admin/proposals": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List proposals with provenance",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.AdminPage"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/utils.ErrorResponseStruct"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "List notifications addressed to the caller",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.NotificationPage"}}
                }
            },
            "post": {
                "security": [{"CookieAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Create a notification",
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/utils.ErrorResponseStruct"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.CreateDraftRequest": {
            "type": "object",
            "properties": {
                "eventType": {"type": "string"},
                "originalDescriptiveId": {"type": "string"}
            }
        },
        "handlers.EventTypeRequest": {
            "type": "object",
            "properties": {
                "eventType": {"type": "string"}
            }
        },
        "handlers.SectionResponse": {"type": "object"},
        "services.Draft": {
            "type": "object",
            "properties": {
                "draftId": {"type": "string"},
                "eventType": {"type": "string"},
                "currentSection": {"type": "string"},
                "status": {"type": "string"},
                "completionPercentage": {"type": "integer"},
                "warnings": {"type": "array", "items": {"type": "object", "properties": {"field": {"type": "string"}, "reason": {"type": "string"}}}}
            }
        },
        "services.MergedProposal": {
            "type": "object",
            "properties": {
                "proposal": {"type": "object"},
                "attachments": {"type": "array", "items": {"type": "object"}},
                "dataSource": {"type": "string"}
            }
        },
        "services.Transition": {"type": "object"},
        "services.AdminPage": {"type": "object"},
        "services.NotificationPage": {"type": "object"},
        "services.HealthCheckResult": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "database": {"type": "string"},
                "documents": {"type": "string"},
                "authorizer": {"type": "string"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}},
                "error": {"type": "string"}
            }
        },
        "utils.ErrorResponseStruct": {
            "type": "object",
            "properties": {
                "status": {"type": "integer"},
                "message": {"type": "string"},
                "ok": {"type": "boolean"},
                "timestamp": {"type": "string"},
                "url": {"type": "string"},
                "type": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "CookieAuth": {
            "type": "apiKey",
            "name": "cookie_session",
            "in": "cookie"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:3000",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "ProposalDB API",
	Description:      "Draft identity and hybrid persistence service for event proposals",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
