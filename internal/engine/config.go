package engine

// Config holds configuration for one Engine instance. It is passed in at
// construction time; the Engine never reads the environment mid-run.
type Config struct {
	Model       string  `json:"model"`
	SessionID   string  `json:"session_id,omitempty"`
	MaxRounds   int     `json:"max_rounds"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	Workspace   string  `json:"workspace,omitempty"`
}

// DefaultConfig returns a default engine configuration.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o",
		MaxRounds:   30,
		MaxTokens:   4096,
		Temperature: 0.2,
	}
}

// maxFeedbackChars caps the execution summary quoted back to the LLM.
const maxFeedbackChars = 4000
