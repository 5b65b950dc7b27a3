package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the membership service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>membership API docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the membership endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "membership", "version": "v0.1.0" },
  "components": {
    "parameters": {
      "app": { "name": "X-Application-Name", "in": "header", "required": false, "schema": { "type": "string" } }
    },
    "schemas": {
      "User": { "type": "object", "properties": { "id": {"type":"string"}, "username": {"type":"string"}, "email": {"type":"string"}, "applicationName": {"type":"string"}, "dateCreated": {"type":"string","format":"date-time"}, "dateLastLogin": {"type":"string","format":"date-time"} } }
    }
  },
  "paths": {
    "/api/v1/users": {
      "post": {
        "summary": "Create a user",
        "parameters": [ { "$ref": "#/components/parameters/app" } ],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"username":{"type":"string"},"password":{"type":"string"},"email":{"type":"string"}}}}}},
        "responses": { "201": { "description": "user created" }, "400": { "description": "invalid username, password or email" }, "409": { "description": "duplicate username or email" }, "500": { "description": "provider error" } }
      },
      "get": {
        "summary": "List users, optionally filtered by name or email substring",
        "parameters": [ { "$ref": "#/components/parameters/app" }, { "name": "name", "in": "query", "schema": {"type":"string"} }, { "name": "email", "in": "query", "schema": {"type":"string"} }, { "name": "page", "in": "query", "schema": {"type":"integer"} }, { "name": "pageSize", "in": "query", "schema": {"type":"integer"} } ],
        "responses": { "200": { "description": "page of users with totalRecords" } }
      }
    },
    "/api/v1/users/validate": {
      "post": { "summary": "Validate credentials and record the login", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"username":{"type":"string"},"password":{"type":"string"}}}}}}, "responses": { "200": { "description": "valid" }, "401": { "description": "invalid credentials" }, "429": { "description": "rate limited" } } }
    },
    "/api/v1/users/{username}/password": {
      "post": { "summary": "Change password", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"oldPassword":{"type":"string"},"newPassword":{"type":"string"}}}}}}, "responses": { "204": { "description": "changed" }, "400": { "description": "new password rejected" }, "401": { "description": "invalid credentials" } } }
    },
    "/api/v1/users/{username}": {
      "get": { "summary": "Get a user by name", "responses": { "200": { "description": "user" }, "404": { "description": "not found" } } },
      "put": { "summary": "Update email and dates", "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["email"],"properties":{"email":{"type":"string"},"createdAt":{"type":"string","format":"date-time"},"lastLoginAt":{"type":"string","format":"date-time"}}}}}}, "responses": { "200": { "description": "updated user" }, "400": { "description": "email missing or invalid" }, "404": { "description": "not found" }, "409": { "description": "email taken" } } },
      "delete": { "summary": "Delete a user and its claims", "responses": { "204": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/v1/users/id/{id}": {
      "get": { "summary": "Get a user by id", "responses": { "200": { "description": "user" }, "404": { "description": "not found" } } }
    },
    "/api/v1/usernames": {
      "get": { "summary": "Resolve a username from an email", "parameters": [ { "name": "email", "in": "query", "required": true, "schema": {"type":"string"} } ], "responses": { "200": { "description": "username" }, "404": { "description": "no user with that email" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
