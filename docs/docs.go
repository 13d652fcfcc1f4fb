// Package docs is generated by swag from the handler annotations.
// Regenerate with: swag init -g cmd/api/main.go -o docs
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
        "/locations": {
            "get": {
                "description": "Returns the caller's history newest first (saved_at, then id, descending).\nFollow next_cursor until it is null to visit every matching record once.\nSupports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Locations"],
                "summary": "List saved locations",
                "operationId": "listLocations",
                "parameters": [
                    {"type": "string", "description": "User ID (demo header)", "name": "X-User-ID", "in": "header"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Page size", "name": "limit", "in": "query"},
                    {"type": "string", "description": "next_cursor from the previous page, or an RFC 3339 timestamp", "name": "cursor", "in": "query"},
                    {"type": "string", "description": "Case-insensitive text in address or note", "name": "q", "in": "query"},
                    {"type": "string", "description": "Category id", "name": "category", "in": "query"},
                    {"type": "string", "description": "Earliest saved_at (RFC 3339, inclusive)", "name": "from", "in": "query"},
                    {"type": "string", "description": "Latest saved_at (RFC 3339, inclusive)", "name": "to", "in": "query"},
                    {"type": "string", "description": "Weak ETag from a previous response", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListLocationsResponse"}},
                    "304": {"description": "Not Modified"},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Saves a location to the caller's history and returns it immediately.\nRecords with coordinates but no address get the address filled in asynchronously.\nSupports idempotency via the Idempotency-Key header (same key → same record).",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Locations"],
                "summary": "Save a location",
                "operationId": "createLocation",
                "parameters": [
                    {"type": "string", "description": "User ID (demo header)", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "description": "Idempotency key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Location payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateLocationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Location"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/locations/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Locations"],
                "summary": "Get a saved location",
                "operationId": "getLocation",
                "parameters": [
                    {"type": "string", "description": "User ID (demo header)", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "description": "Location ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Location"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["Locations"],
                "summary": "Delete a saved location",
                "operationId": "deleteLocation",
                "parameters": [
                    {"type": "string", "description": "User ID (demo header)", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "description": "Location ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Locations"],
                "summary": "Edit a saved location",
                "operationId": "updateLocation",
                "parameters": [
                    {"type": "string", "description": "User ID (demo header)", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "description": "Location ID", "name": "id", "in": "path", "required": true},
                    {"description": "Fields to change", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.UpdateLocationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Location"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/geocode": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Geocoding"],
                "summary": "Resolve an address to coordinates",
                "operationId": "geocode",
                "parameters": [
                    {"type": "string", "description": "Address text (at least 3 characters)", "name": "q", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.GeocodeResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "No match", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/geocode/reverse": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Geocoding"],
                "summary": "Resolve coordinates to an address",
                "operationId": "reverseGeocode",
                "parameters": [
                    {"type": "number", "description": "Latitude in [-90, 90]", "name": "lat", "in": "query", "required": true},
                    {"type": "number", "description": "Longitude in [-180, 180]", "name": "lng", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ReverseGeocodeResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "No match", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Location": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "accuracy": {"type": "number"},
                "address": {"type": "string"},
                "note": {"type": "string"},
                "category_id": {"type": "string"},
                "floor": {"type": "string"},
                "place_ref": {"type": "string"},
                "active": {"type": "boolean"},
                "saved_at": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "handlers.CreateLocationRequest": {
            "type": "object",
            "properties": {
                "latitude": {"type": "number", "example": 52.3731},
                "longitude": {"type": "number", "example": 4.8922},
                "accuracy": {"type": "number"},
                "address": {"type": "string"},
                "note": {"type": "string"},
                "category_id": {"type": "string"},
                "floor": {"type": "string"},
                "place_ref": {"type": "string"},
                "active": {"type": "boolean"},
                "saved_at": {"type": "string"}
            }
        },
        "handlers.UpdateLocationRequest": {
            "type": "object",
            "properties": {
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "accuracy": {"type": "number"},
                "address": {"type": "string"},
                "note": {"type": "string"},
                "category_id": {"type": "string"},
                "floor": {"type": "string"},
                "place_ref": {"type": "string"},
                "active": {"type": "boolean"}
            }
        },
        "handlers.ListLocationsResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/domain.Location"}},
                "next_cursor": {"type": "string"}
            }
        },
        "handlers.GeocodeResponse": {
            "type": "object",
            "properties": {
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "display": {"type": "string"}
            }
        },
        "handlers.ReverseGeocodeResponse": {
            "type": "object",
            "properties": {
                "address": {"type": "string"},
                "display": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Location Backend API",
	Description:      "Saved-location history with keyset pagination, cache-first geocoding and background address enrichment.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
