package data

import (
	_ "embed"
)

// RequiredFields is the default wizard required-field table.
// REQUIRED_FIELDS_FILE replaces it at runtime.
//
//go:embed required_fields.yaml
var RequiredFields []byte
