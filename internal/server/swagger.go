package server

//go:generate swag init -g internal/server/swagger.go -o internal/server/docs

// @title Sitebuilder API
// @version 0.1
// @description Projects, page versions, element edits and skill jobs for the site builder dev backend.
// @BasePath /
