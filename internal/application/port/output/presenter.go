package output

// Presenter defines the interface for presenting output to users
// Different implementations can format output for CLI or JSON
type Presenter interface {
	// PresentSuccess presents a successful result
	PresentSuccess(message string, data interface{}) error

	// PresentError presents an error
	PresentError(err error) error
}
