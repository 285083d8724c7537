package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphSchema(t *testing.T) {
	raw := GraphSchema()
	require.NotEmpty(t, raw)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Contains(t, doc, "$schema")
	assert.Contains(t, doc, "$id")
	assert.NotEmpty(t, doc["title"])
	assert.Equal(t, "object", doc["type"])

	nodes := doc["properties"].(map[string]interface{})["nodes"].(map[string]interface{})
	nodeType := nodes["items"].(map[string]interface{})["properties"].(map[string]interface{})["type"].(map[string]interface{})
	assert.Contains(t, nodeType["enum"], "if-else")
}
