// Package docs registers the OpenAPI description of the worker HTTP surface
// with swag so gin-swagger can serve it under /docs.
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
        "/": {
            "get": {"tags": ["health"], "summary": "Worker information", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/health": {
            "get": {"tags": ["health"], "summary": "Health check", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/cameras": {
            "get": {"tags": ["cameras"], "summary": "List all cameras", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}},
            "post": {
                "tags": ["cameras"], "summary": "Add a camera",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.CameraRequest"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}
            }
        },
        "/cameras/{id}": {
            "get": {"tags": ["cameras"], "summary": "Get camera status", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "put": {
                "tags": ["cameras"], "summary": "Update a camera",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}, {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/models.CameraUpdate"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}
            },
            "delete": {"tags": ["cameras"], "summary": "Remove a camera", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/cameras/{id}/frame": {
            "get": {"tags": ["cameras"], "summary": "Latest camera frame", "produces": ["image/jpeg"], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}}
        },
        "/cameras/{id}/stream": {
            "get": {"tags": ["cameras"], "summary": "Live MJPEG stream", "produces": ["multipart/x-mixed-replace"], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/cameras/{id}/alert": {
            "post": {"tags": ["cameras"], "summary": "Trigger a manual alert", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "503": {"description": "Service Unavailable"}}}
        },
        "/settings": {
            "get": {"tags": ["settings"], "summary": "Current settings", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["settings"], "summary": "Update settings", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/alerts": {
            "get": {"tags": ["alerts"], "summary": "List alert snapshots", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/alerts/stats": {
            "get": {"tags": ["alerts"], "summary": "Alert statistics", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/alerts/images/{name}": {
            "get": {"tags": ["alerts"], "summary": "Alert snapshot image", "produces": ["image/jpeg"], "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}}
        },
        "/recordings": {
            "get": {"tags": ["recordings"], "summary": "Recordings catalogue", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/recordings/status": {
            "get": {"tags": ["recordings"], "summary": "Recorder status", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/recordings/cleanup": {
            "post": {"tags": ["recordings"], "summary": "Run one eviction pass", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/recordings/files/{path}": {
            "get": {"tags": ["recordings"], "summary": "Download a recording", "produces": ["video/mp4"], "parameters": [{"type": "string", "name": "path", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}}
        },
        "/system/stats": {
            "get": {"tags": ["system"], "summary": "Get system stats", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}
        },
        "/ws/status": {
            "get": {"tags": ["status"], "summary": "Live status feed", "responses": {"101": {"description": "Switching Protocols"}}}
        }
    },
    "definitions": {
        "models.CameraRequest": {
            "type": "object",
            "required": ["source_uri"],
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "source_uri": {"type": "string"},
                "enabled": {"type": "boolean"}
            }
        },
        "models.CameraUpdate": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "source_uri": {"type": "string"},
                "enabled": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:5000",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Sentinel Worker API",
	Description:      "Camera surveillance worker: motion and person detection, alerts, recordings and live frames",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
