package dto

// PromptContextDTO contains context information for building a node prompt
type PromptContextDTO struct {
	Node               string
	FeatureName        string
	FeatureDescription string
	RunPrompt          string
	WorkDir            string
	SpecPath           string
	Branch             string
	OutputSchema       string

	// Feedback from a rejected approval, injected when the node is re-run
	Feedback          string
	FeedbackIteration int

	// Errors from the previous attempt when output failed validation
	ValidationErrors []string
}

// MergePromptDTO contains the inputs of the two merge sub-phases
type MergePromptDTO struct {
	WorkDir    string
	SpecPath   string
	Branch     string
	BaseBranch string
	Push       bool
	OpenPR     bool
	PRURL      string
	PRNumber   int
	Feedback   string
}

// PromptResultDTO contains the built prompt and any warnings
type PromptResultDTO struct {
	Content  string
	Warnings []string
}
