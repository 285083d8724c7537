package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tombee/chatflow/schemas"
)

var (
	graphOnce   sync.Once
	graphSchema map[string]interface{}
	graphErr    error
)

// GraphSchema returns the parsed graph document schema.
func GraphSchema() (map[string]interface{}, error) {
	graphOnce.Do(func() {
		if err := json.Unmarshal(schemas.GraphSchema(), &graphSchema); err != nil {
			graphErr = fmt.Errorf("parsing embedded graph schema: %w", err)
		}
	})
	return graphSchema, graphErr
}

// ValidateGraphDocument checks a decoded graph document (as produced by
// json.Unmarshal into interface{}) against the embedded graph schema.
func ValidateGraphDocument(doc interface{}) error {
	s, err := GraphSchema()
	if err != nil {
		return err
	}
	return NewValidator().Validate(s, doc)
}
