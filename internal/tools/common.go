package tools

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

const maxOutputBytes = 10_000

var validate = validator.New(validator.WithRequiredStructEnabled())

func truncate(b []byte) string {
	if len(b) <= maxOutputBytes {
		return string(b)
	}
	n := maxOutputBytes
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n]) + "\n... (truncated)"
}

// schemaOf reflects the JSON schema for an args struct in the strict shape
// function tools expect: inline, every property required, no extras.
func schemaOf(v any) map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		panic(fmt.Sprintf("tools: marshaling schema: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("tools: decoding schema: %v", err))
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}

// decode parses the tool input into args and validates it.
func decode(name, input string, args any) error {
	if err := json.Unmarshal([]byte(input), args); err != nil {
		return fmt.Errorf("parsing %s input: %w", name, err)
	}
	if err := validate.Struct(args); err != nil {
		return fmt.Errorf("invalid %s input: %w", name, err)
	}
	return nil
}
