// Package docs registers the OpenAPI document served at /swagger.
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
        "/healthz": {
            "get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/projects": {
            "get": {"produces": ["application/json"], "tags": ["projects"], "summary": "List projects, newest first", "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/pipeline.ProjectState"}}}}},
            "post": {"consumes": ["application/json"], "produces": ["application/json"], "tags": ["projects"], "summary": "Create a project", "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/server.CreateProjectRequest"}}], "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/pipeline.ProjectState"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/projects/{projectID}": {
            "get": {"produces": ["application/json"], "tags": ["projects"], "summary": "Fetch a project's status", "parameters": [{"type": "string", "in": "path", "name": "projectID", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/pipeline.ProjectState"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}},
            "delete": {"tags": ["projects"], "summary": "Delete a project and its pages", "parameters": [{"type": "string", "in": "path", "name": "projectID", "required": true}], "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/projects/{projectID}/config": {
            "put": {"consumes": ["application/json"], "tags": ["projects"], "summary": "Save the project configuration", "parameters": [{"type": "string", "in": "path", "name": "projectID", "required": true}, {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/pipeline.Config"}}], "responses": {"204": {"description": "No Content"}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/projects/{projectID}/pipeline": {
            "post": {"consumes": ["application/json"], "produces": ["application/json"], "tags": ["projects"], "summary": "Start the generation pipeline", "parameters": [{"type": "string", "in": "path", "name": "projectID", "required": true}, {"in": "body", "name": "body", "schema": {"$ref": "#/definitions/pipeline.Config"}}], "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/server.TriggerResponse"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/projects/{projectID}/paths": {
            "get": {"produces": ["application/json"], "tags": ["pages"], "summary": "List the paths of a project", "parameters": [{"type": "string", "in": "path", "name": "projectID", "required": true}], "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"type": "string"}}}}}
        },
        "/projects/{projectID}/pages": {
            "get": {"produces": ["application/json"], "tags": ["pages"], "summary": "List every version of a path", "parameters": [{"type": "string", "in": "path", "name": "projectID", "required": true}, {"type": "string", "in": "query", "name": "path", "required": true}], "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/pages.Page"}}}}},
            "post": {"consumes": ["application/json"], "produces": ["application/json"], "tags": ["pages"], "summary": "Create version 1 of a new path as a draft", "parameters": [{"type": "string", "in": "path", "name": "projectID", "required": true}, {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/server.CreatePageRequest"}}], "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/pages.Page"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}},
            "delete": {"tags": ["pages"], "summary": "Delete every version of a path", "parameters": [{"type": "string", "in": "path", "name": "projectID", "required": true}, {"type": "string", "in": "query", "name": "path", "required": true}], "responses": {"204": {"description": "No Content"}}}
        },
        "/templates": {
            "get": {"produces": ["application/json"], "tags": ["templates"], "summary": "List templates", "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/store.Template"}}}}},
            "post": {"consumes": ["application/json"], "produces": ["application/json"], "tags": ["templates"], "summary": "Create a template", "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/server.CreateTemplateRequest"}}], "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/store.Template"}}}}
        },
        "/templates/{templateID}/pages": {
            "get": {"produces": ["application/json"], "tags": ["templates"], "summary": "List the pages of a template", "parameters": [{"type": "string", "in": "path", "name": "templateID", "required": true}], "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/pipeline.TemplatePage"}}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/pages/{pageID}": {
            "get": {"produces": ["application/json"], "tags": ["pages"], "summary": "Fetch one page version", "parameters": [{"type": "string", "in": "path", "name": "pageID", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/pages.Page"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}},
            "put": {"consumes": ["application/json"], "produces": ["application/json"], "tags": ["pages"], "summary": "Overwrite a draft's content", "parameters": [{"type": "string", "in": "path", "name": "pageID", "required": true}, {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/pages.Content"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/pages.Page"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}},
            "delete": {"tags": ["pages"], "summary": "Delete one non-published version", "parameters": [{"type": "string", "in": "path", "name": "pageID", "required": true}], "responses": {"204": {"description": "No Content"}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/pages/{pageID}/draft": {
            "post": {"produces": ["application/json"], "tags": ["pages"], "summary": "Open a draft of the page's path", "parameters": [{"type": "string", "in": "path", "name": "pageID", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/pages.Page"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/pages/{pageID}/publish": {
            "post": {"produces": ["application/json"], "tags": ["pages"], "summary": "Publish a draft", "parameters": [{"type": "string", "in": "path", "name": "pageID", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/pages.Page"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/pages/{pageID}/restore": {
            "post": {"produces": ["application/json"], "tags": ["pages"], "summary": "Copy an inactive version into a new draft", "parameters": [{"type": "string", "in": "path", "name": "pageID", "required": true}], "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/pages.Page"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/pages/{pageID}/diff": {
            "get": {"produces": ["application/json"], "tags": ["pages"], "summary": "Diff two versions section by section", "parameters": [{"type": "string", "in": "path", "name": "pageID", "required": true}, {"type": "string", "in": "query", "name": "base", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/pages.VersionDiff"}}}}
        },
        "/pages/{pageID}/edit": {
            "post": {"consumes": ["application/json"], "produces": ["application/json"], "tags": ["pages"], "summary": "Ask the editor to rewrite one element of a draft", "parameters": [{"type": "string", "in": "path", "name": "pageID", "required": true}, {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/editsession.EditRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/editsession.EditResult"}}, "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}}
        },
        "/skills/{resourceID}": {
            "get": {"produces": ["application/json"], "tags": ["skills"], "summary": "Fetch the status of a skill job", "parameters": [{"type": "string", "in": "path", "name": "resourceID", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/skills.Skill"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}},
            "post": {"consumes": ["application/json"], "produces": ["application/json"], "tags": ["skills"], "summary": "Start skill generation for a resource", "parameters": [{"type": "string", "in": "path", "name": "resourceID", "required": true}, {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/server.StartSkillRequest"}}], "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/server.SkillResponse"}}}}
        },
        "/jobs/{jobID}": {
            "get": {"produces": ["application/json"], "tags": ["jobs"], "summary": "Fetch a background job", "parameters": [{"type": "string", "in": "path", "name": "jobID", "required": true}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/worker.Job"}}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}}},
            "delete": {"tags": ["jobs"], "summary": "Cancel a background job", "parameters": [{"type": "string", "in": "path", "name": "jobID", "required": true}], "responses": {"204": {"description": "No Content"}}}
        }
    },
    "definitions": {
        "editsession.EditRequest": {"type": "object", "properties": {"selector": {"type": "string"}, "kind": {"type": "string"}, "current_html": {"type": "string"}, "instruction": {"type": "string"}, "chat_history": {"type": "array", "items": {"$ref": "#/definitions/pages.ChatMessage"}}}},
        "editsession.EditResult": {"type": "object", "properties": {"edited_html": {"type": "string"}, "rejected": {"type": "boolean"}, "message": {"type": "string"}, "debug": {"type": "object"}}},
        "pages.ChatMessage": {"type": "object", "properties": {"role": {"type": "string"}, "content": {"type": "string"}, "timestamp": {"type": "string"}, "is_error": {"type": "boolean"}}},
        "pages.Content": {"type": "object", "properties": {"sections": {"type": "array", "items": {"$ref": "#/definitions/pages.Section"}}, "edit_chat_history": {"type": "object"}}},
        "pages.Page": {"type": "object", "properties": {"id": {"type": "string"}, "project_id": {"type": "string"}, "path": {"type": "string"}, "version": {"type": "integer"}, "status": {"type": "string", "enum": ["draft", "published", "inactive"]}, "sections": {"type": "array", "items": {"$ref": "#/definitions/pages.Section"}}, "edit_chat_history": {"type": "object"}, "created_at": {"type": "string"}, "updated_at": {"type": "string"}}},
        "pages.Section": {"type": "object", "properties": {"name": {"type": "string"}, "content": {"type": "string"}}},
        "pages.VersionDiff": {"type": "object", "properties": {"base_id": {"type": "string"}, "head_id": {"type": "string"}, "base_version": {"type": "integer"}, "head_version": {"type": "integer"}, "chunks": {"type": "array", "items": {"type": "object"}}}},
        "pipeline.Config": {"type": "object", "properties": {"selected_place_id": {"type": "string"}, "selected_website_url": {"type": "string"}, "template_id": {"type": "string"}, "primary_color": {"type": "string"}, "accent_color": {"type": "string"}}},
        "pipeline.ProjectState": {"type": "object", "properties": {"id": {"type": "string"}, "generated_hostname": {"type": "string"}, "status": {"type": "string"}, "config": {"$ref": "#/definitions/pipeline.Config"}, "stage_artifacts": {"type": "object"}, "updated_at": {"type": "string"}}},
        "pipeline.TemplatePage": {"type": "object", "properties": {"id": {"type": "string"}, "template_id": {"type": "string"}, "path": {"type": "string"}, "sections": {"type": "array", "items": {"$ref": "#/definitions/pages.Section"}}}},
        "server.CreatePageRequest": {"type": "object", "properties": {"path": {"type": "string", "example": "/about"}, "sections": {"type": "array", "items": {"$ref": "#/definitions/pages.Section"}}}},
        "server.CreateProjectRequest": {"type": "object", "properties": {"generated_hostname": {"type": "string", "example": "smile-dental"}}},
        "server.CreateTemplateRequest": {"type": "object", "properties": {"name": {"type": "string", "example": "dental"}, "pages": {"type": "array", "items": {"$ref": "#/definitions/pipeline.TemplatePage"}}}},
        "server.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "code": {"type": "string", "example": "NOT_A_DRAFT"}}},
        "server.SkillResponse": {"type": "object", "properties": {"skill": {"$ref": "#/definitions/skills.Skill"}, "job": {"$ref": "#/definitions/worker.Job"}}},
        "server.StartSkillRequest": {"type": "object", "properties": {"prompt": {"type": "string"}}},
        "server.TriggerResponse": {"type": "object", "properties": {"project": {"$ref": "#/definitions/pipeline.ProjectState"}, "job": {"$ref": "#/definitions/worker.Job"}}},
        "skills.Skill": {"type": "object", "properties": {"resource_id": {"type": "string"}, "status": {"type": "string", "enum": ["generating", "ready", "failed"]}, "artifact": {"type": "string"}, "error": {"type": "string"}, "updated_at": {"type": "string"}}},
        "store.Template": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "page_count": {"type": "integer"}, "created_at": {"type": "string"}}},
        "worker.Job": {"type": "object", "properties": {"id": {"type": "string"}, "type": {"type": "string"}, "target": {"type": "string"}, "status": {"type": "string"}, "error": {"type": "string"}, "started_at": {"type": "string"}, "ended_at": {"type": "string"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Sitebuilder API",
	Description:      "Projects, page versions, element edits and skill jobs for the site builder dev backend.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
