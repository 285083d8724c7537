package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// codeFence matches a reply that is exactly one fenced block.
var codeFence = regexp.MustCompile("(?s)^```(?:json)?[ \\t]*\\n(.*?)\\n?```$")

// BuildPromptWithSchema appends JSON output instructions to a system prompt.
// Later attempts are progressively stricter and the final form includes an
// example document.
func BuildPromptWithSchema(prompt string, schema map[string]interface{}, attempt int) string {
	desc := describeSchema(schema)

	var instruction string
	switch attempt {
	case 0:
		instruction = fmt.Sprintf("Respond with valid JSON matching this structure:\n%s", desc)
	case 1:
		instruction = fmt.Sprintf("IMPORTANT: Your previous response did not match the required format. Respond ONLY with a JSON object matching this structure:\n%s", desc)
	default:
		example, _ := json.MarshalIndent(exampleValue(schema), "", "  ")
		instruction = fmt.Sprintf("CRITICAL: Respond with ONLY valid JSON. No explanations, no markdown.\n\nRequired format:\n%s\n\nExample:\n%s", desc, example)
	}

	if strings.TrimSpace(prompt) == "" {
		return instruction
	}
	return prompt + "\n\n" + instruction
}

func describeSchema(schema map[string]interface{}) string {
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		raw, _ := json.Marshal(schema)
		return string(raw)
	}

	required := make(map[string]bool)
	if list, ok := schema["required"].([]interface{}); ok {
		for _, r := range list {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		prop, _ := props[name].(map[string]interface{})
		propType, _ := prop["type"].(string)

		line := fmt.Sprintf("  %q: %s", name, propType)
		if required[name] {
			line += " (required)"
		}
		if enum, ok := prop["enum"].([]interface{}); ok {
			values := make([]string, len(enum))
			for i, v := range enum {
				values[i] = fmt.Sprintf("%q", fmt.Sprint(v))
			}
			line += " // one of: " + strings.Join(values, ", ")
		}
		lines = append(lines, line)
	}
	return "{\n" + strings.Join(lines, ",\n") + "\n}"
}

func exampleValue(schema map[string]interface{}) interface{} {
	if enum, ok := schema["enum"].([]interface{}); ok && len(enum) > 0 {
		return enum[0]
	}
	t, _ := schema["type"].(string)
	switch t {
	case "object":
		obj := make(map[string]interface{})
		if props, ok := schema["properties"].(map[string]interface{}); ok {
			for name, p := range props {
				prop, _ := p.(map[string]interface{})
				obj[name] = exampleValue(prop)
			}
		}
		return obj
	case "array":
		if items, ok := schema["items"].(map[string]interface{}); ok {
			return []interface{}{exampleValue(items)}
		}
		return []interface{}{}
	case "string":
		return "example"
	case "number":
		return 42.5
	case "integer":
		return 1
	case "boolean":
		return true
	}
	return nil
}

// ParseJSON decodes a structured model reply. The whole reply, trimmed and
// optionally wrapped in a single code fence, must be valid JSON. Nothing is
// repaired or pulled out of surrounding prose.
func ParseJSON(response string) (interface{}, error) {
	response = strings.TrimSpace(response)
	if m := codeFence.FindStringSubmatch(response); m != nil {
		response = strings.TrimSpace(m[1])
	}

	var data interface{}
	if err := json.Unmarshal([]byte(response), &data); err != nil {
		return nil, fmt.Errorf("reply is not valid JSON: %w", err)
	}
	return data, nil
}
