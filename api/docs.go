package api

import _ "embed"

// OpenAPI is the HTTP API description served to the swagger UI.
//
//go:embed openapi.json
var OpenAPI []byte
