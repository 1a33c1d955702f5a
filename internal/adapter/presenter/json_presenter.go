package presenter

import (
	"encoding/json"
	"io"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
)

// JSONPresenter implements output.Presenter for JSON output
// Formats all output as JSON for programmatic consumption
type JSONPresenter struct {
	output io.Writer
}

// NewJSONPresenter creates a new JSON presenter
func NewJSONPresenter(output io.Writer) output.Presenter {
	return &JSONPresenter{output: output}
}

// PresentSuccess presents a successful result as JSON
func (p *JSONPresenter) PresentSuccess(message string, data interface{}) error {
	result := map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	}
	return p.encode(result)
}

// PresentError presents an error as JSON. Domain errors carry their code.
func (p *JSONPresenter) PresentError(err error) error {
	result := map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	}
	if code := execution.CodeOf(err); code != "" {
		result["code"] = code
	}
	if encErr := p.encode(result); encErr != nil {
		return encErr
	}
	return err
}

func (p *JSONPresenter) encode(v interface{}) error {
	enc := json.NewEncoder(p.output)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
