package config

import "embed"

const rulesSchemaFile = "schema/rules.schema.json"

//go:embed schema/*.json
var configSchemaFS embed.FS
