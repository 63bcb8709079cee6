// Package executor runs model-generated Python snippets in an isolated
// environment and reports their outcome, including any image artifacts
// the snippet produced.
package executor

import "context"

// Image is one rendered artifact captured from an execution, typically a
// matplotlib figure. Data is base64-encoded.
type Image struct {
	MIME string `json:"mime"`
	Data string `json:"data"`
}

// Result is the outcome of one execution attempt. Output carries stdout
// and stderr combined; Error is set only when Success is false.
type Result struct {
	Success bool    `json:"success"`
	Output  string  `json:"output"`
	Error   string  `json:"error,omitempty"`
	Images  []Image `json:"images,omitempty"`
}

// Executor runs one code snippet to completion. Implementations must be
// safe against hostile code: the engine passes model output through
// unreviewed. Execute returns an error only for infrastructure failures;
// a snippet that raises is reported via Result.Success=false.
type Executor interface {
	Execute(ctx context.Context, code string) (Result, error)
	Close() error
}
