// Package schemas provides access to embedded JSON schemas.
package schemas

import (
	_ "embed"
)

// graphSchema describes the on-disk workflow graph document. Editors can
// point at it for completion and the loader checks documents against it.
//
//go:embed graph.schema.json
var graphSchema []byte

// GraphSchema returns the embedded graph JSON Schema as raw bytes.
func GraphSchema() []byte {
	return graphSchema
}
