// Package docs holds the OpenAPI document served at /swagger.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/api/bills": {
            "get": {
                "tags": ["bills"],
                "summary": "List bills visible to the caller",
                "parameters": [
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "string", "name": "paymentStatus", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/common.ListResponse"}}}
            },
            "post": {
                "tags": ["bills"],
                "summary": "Create a bill and reserve stock",
                "parameters": [
                    {"name": "bill", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.CreateBillRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/common.SuccessResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/common.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/common.ErrorResponse"}}
                }
            }
        },
        "/api/bills/admin/stats": {
            "get": {
                "tags": ["bills"],
                "summary": "Bill totals for a period",
                "parameters": [{"type": "string", "name": "period", "in": "query", "enum": ["week", "month", "year"]}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/common.SuccessResponse"}}}
            }
        },
        "/api/bills/{id}": {
            "get": {
                "tags": ["bills"],
                "summary": "Get one bill",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/common.SuccessResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/common.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/common.ErrorResponse"}}
                }
            }
        },
        "/api/bills/{id}/pdf": {
            "get": {
                "tags": ["bills"],
                "summary": "Render the invoice and return a download link",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/common.SuccessResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/common.ErrorResponse"}}
                }
            }
        },
        "/api/bills/{id}/download-pdf": {
            "get": {
                "produces": ["application/pdf"],
                "tags": ["bills"],
                "summary": "Render the invoice and stream it",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"type": "file"}}}
            }
        },
        "/api/bills/{id}/create-order": {
            "post": {
                "tags": ["payments"],
                "summary": "Create a payment gateway order for the bill",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/common.SuccessResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/common.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/common.ErrorResponse"}}
                }
            }
        },
        "/api/bills/{id}/verify-payment": {
            "post": {
                "tags": ["payments"],
                "summary": "Verify a signed gateway payment and mark the bill paid",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "payment", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.VerifyPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/common.SuccessResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/common.ErrorResponse"}}
                }
            }
        },
        "/api/bills/{id}/send-email": {
            "post": {
                "tags": ["bills"],
                "summary": "Email the invoice to the customer",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "email", "in": "body", "schema": {"$ref": "#/definitions/services.SendInvoiceEmailRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/common.SuccessResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/common.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/common.ErrorResponse"}}
                }
            }
        },
        "/webhooks/razorpay": {
            "post": {
                "security": [],
                "tags": ["payments"],
                "summary": "Gateway payment notifications",
                "parameters": [{"type": "string", "name": "X-Razorpay-Signature", "in": "header", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/common.SuccessResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/common.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "common.ErrorResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "code": {"type": "string"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "common.SuccessResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "data": {}
            }
        },
        "common.ListResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "count": {"type": "integer"},
                "totalBills": {"type": "integer"},
                "totalPages": {"type": "integer"},
                "currentPage": {"type": "integer"},
                "data": {}
            }
        },
        "services.BillItemRequest": {
            "type": "object",
            "properties": {
                "product": {"type": "string"},
                "quantity": {"type": "integer", "minimum": 1}
            }
        },
        "services.CreateBillRequest": {
            "type": "object",
            "required": ["products"],
            "properties": {
                "products": {"type": "array", "items": {"$ref": "#/definitions/services.BillItemRequest"}},
                "customer": {"type": "string"},
                "customerInfo": {"type": "object"},
                "taxRate": {"type": "string"},
                "discount": {"type": "string"},
                "notes": {"type": "string", "maxLength": 500},
                "billNumber": {"type": "string"},
                "paymentMethod": {"type": "string"}
            }
        },
        "services.VerifyPaymentRequest": {
            "type": "object",
            "required": ["gatewayOrderId", "gatewayPaymentId", "signature"],
            "properties": {
                "gatewayPaymentId": {"type": "string"},
                "gatewayOrderId": {"type": "string"},
                "signature": {"type": "string"}
            }
        },
        "services.SendInvoiceEmailRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "subject": {"type": "string"},
                "message": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Billdesk API",
	Description:      "Bills, payments and invoices.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
