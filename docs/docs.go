// Package docs registers the OpenAPI description served under /swagger.
// Regenerate with: swag init -g cmd/server/main.go
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
        "/kyc/profile": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["KYC"],
                "summary": "KYC profile of the current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.KYCProfile"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["KYC"],
                "summary": "Create KYC profile",
                "parameters": [{"description": "Profile fields", "name": "profile", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.ProfileInput"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.KYCProfile"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["KYC"],
                "summary": "Partially update KYC profile",
                "parameters": [{"description": "Changed fields", "name": "profile", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.ProfileInput"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.KYCProfile"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/kyc/documents": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["KYC"],
                "summary": "Upload KYC document",
                "parameters": [{"description": "Document", "name": "document", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.UploadDocumentInput"}}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/models.KYCDocument"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/kyc/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["KYC"],
                "summary": "Aggregated KYC status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.KYCStatusReport"}}
                }
            }
        },
        "/admin/kyc/{user_id}/review": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Admin KYC decision",
                "parameters": [{"type": "integer", "description": "User ID", "name": "user_id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.KYCProfile"}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "models.KYCProfile": {"type": "object"},
        "models.ProfileInput": {"type": "object"},
        "models.KYCDocument": {"type": "object"},
        "models.UploadDocumentInput": {
            "type": "object",
            "required": ["document_type", "front_image_url"],
            "properties": {
                "document_type": {"type": "string"},
                "document_number": {"type": "string"},
                "front_image_url": {"type": "string"},
                "back_image_url": {"type": "string"},
                "expiry_date": {"type": "string"}
            }
        },
        "models.KYCStatusReport": {"type": "object"}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Carwash KYC API",
	Description:      "KYC profiles, documents, OTP verification and admin review.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
