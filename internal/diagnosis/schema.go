package diagnosis

import (
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func stringsReader(s string) io.Reader { return strings.NewReader(s) }

// diagnosisSchemaJSON is the strict-JSON contract stage 4 demands of the
// LanguageModel — enforced here with a validating JSON Schema rather than
// a hand-rolled field-presence check.
const diagnosisSchemaJSON = `{
	"type": "object",
	"required": ["summary", "fixAction", "confidence"],
	"properties": {
		"summary": {"type": "string"},
		"filePath": {"type": "string"},
		"fixAction": {"type": "string", "enum": ["edit", "command", "create"]},
		"suggestedCommand": {"type": "string"},
		"reproductionCommand": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

var diagnosisSchema = mustCompileDiagnosisSchema()

func mustCompileDiagnosisSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	const resourceName = "diagnosis.json"
	if err := compiler.AddResource(resourceName, stringsReader(diagnosisSchemaJSON)); err != nil {
		panic(fmt.Sprintf("diagnosis: invalid embedded schema: %v", err))
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		panic(fmt.Sprintf("diagnosis: compile embedded schema: %v", err))
	}
	return schema
}

// ValidateDiagnosisJSON is passed as PromptBundle.Validate so a
// LanguageModel adapter can reject a malformed diagnosis response before it
// ever reaches json.Unmarshal.
func ValidateDiagnosisJSON(text string) error {
	v, err := jsonschema.UnmarshalJSON(stringsReader(text))
	if err != nil {
		return fmt.Errorf("diagnosis: response is not valid JSON: %w", err)
	}
	if err := diagnosisSchema.Validate(v); err != nil {
		return fmt.Errorf("diagnosis: response does not match the diagnosis schema: %w", err)
	}
	return nil
}
