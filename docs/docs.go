// Package docs registers the OpenAPI document served at /swagger.
// The template is kept in step with the handler annotations by hand.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/readyz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Readiness check",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}
            }
        },
        "/api/webhooks/stripe": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Webhook"],
                "summary": "Stripe Webhook",
                "parameters": [
                    {"type": "string", "description": "Stripe signature header", "name": "Stripe-Signature", "in": "header", "required": true},
                    {"description": "Raw event payload", "name": "payload", "in": "body", "required": true, "schema": {"type": "string"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.WebhookAck"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.WebhookError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.WebhookError"}}
                }
            }
        },
        "/api/v1/admin/subscriptions/{user_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Get User Subscription (Admin)",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "user_id", "in": "path", "required": true},
                    {"type": "integer", "description": "Number of change log entries (default 20, max 100)", "name": "log_limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/admin/list_webhook_events": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List Webhook Events (Admin)",
                "parameters": [{"description": "Filters, pagination and sorting", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/admin/get_subscription_statistic": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Get Subscription Statistics (Admin)",
                "parameters": [{"description": "Statistic request parameters", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/admin/resync_subscription": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Resync Subscription (Admin)",
                "parameters": [{"description": "Provider subscription to resync", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ResyncSubscriptionRequest"}}],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "handlers.ResyncSubscriptionRequest": {
            "type": "object",
            "properties": {"provider_subscription_id": {"type": "string"}}
        },
        "response.WebhookAck": {
            "type": "object",
            "properties": {"received": {"type": "boolean"}}
        },
        "response.WebhookError": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8888",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "billsync API",
	Description:      "Stripe webhook ingestion and subscription reconciliation, with admin read APIs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
