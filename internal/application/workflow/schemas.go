package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
)

// nonBlank is the constraint every free-text field shares
const nonBlank = `{"type":"string","pattern":"\\S"}`

const requirementsSchema = `{"type":"object","required":["summary","requirements"],"properties":{` +
	`"summary":` + nonBlank + `,"requirements":{"type":"array","minItems":1,"items":` + nonBlank + `}}}`

const researchSchema = `{"type":"object","required":["summary","decisions"],"properties":{` +
	`"summary":` + nonBlank + `,"decisions":{"type":"array","minItems":1,"items":` + nonBlank + `}}}`

const planSchema = `{"type":"object","required":["summary","tasks"],"properties":{` +
	`"summary":` + nonBlank + `,"tasks":{"type":"array","minItems":1,"items":{"type":"object",` +
	`"required":["title"],"properties":{"title":` + nonBlank + `,"description":{"type":"string"}}}}}}`

var outputSchemas = map[execution.Node]*openapi3.Schema{
	execution.NodeRequirements: mustSchema(requirementsSchema),
	execution.NodeResearch:     mustSchema(researchSchema),
	execution.NodePlan:         mustSchema(planSchema),
}

func mustSchema(raw string) *openapi3.Schema {
	schema := openapi3.NewSchema()
	if err := json.Unmarshal([]byte(raw), schema); err != nil {
		panic(fmt.Sprintf("output schema: %v", err))
	}
	return schema
}

// OutputSchema returns the JSON schema a node's result must follow, or ""
// for nodes with free-form output
func OutputSchema(node execution.Node) string {
	switch node {
	case execution.NodeRequirements:
		return requirementsSchema
	case execution.NodeResearch:
		return researchSchema
	case execution.NodePlan:
		return planSchema
	default:
		return ""
	}
}

// ValidateOutput checks a node result against its schema and returns one
// message per violation, each prefixed with the JSON pointer of the offending
// value. Nodes without a schema always pass.
func ValidateOutput(node execution.Node, result string) []string {
	schema, ok := outputSchemas[node]
	if !ok {
		return nil
	}

	raw, ok := extractJSONObject(result)
	if !ok {
		return []string{"output is not a JSON object"}
	}
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return []string{fmt.Sprintf("invalid JSON: %v", err)}
	}

	if err := schema.VisitJSON(value, openapi3.MultiErrors()); err != nil {
		return schemaMessages(err)
	}
	return nil
}

// schemaMessages flattens the errors VisitJSON reports into "pointer: reason"
// lines
func schemaMessages(err error) []string {
	switch e := err.(type) {
	case openapi3.MultiError:
		var msgs []string
		for _, inner := range e {
			msgs = append(msgs, schemaMessages(inner)...)
		}
		return msgs
	case *openapi3.SchemaError:
		return []string{fmt.Sprintf("/%s: %s", strings.Join(e.JSONPointer(), "/"), e.Reason)}
	default:
		return []string{err.Error()}
	}
}

// extractJSONObject returns the outermost {...} of s, tolerating code fences
// and prose around it
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
