package plan

import "regexp"

// Terminal escape sequences: CSI (colors, cursor movement) and OSC (titles,
// hyperlinks). Kernel tracebacks arrive colorized; the escapes must be gone
// before output is shown to the user or quoted back to the LLM.
var (
	csiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	oscRe = regexp.MustCompile(`\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)
)

// CleanANSI strips terminal color and control escape sequences.
func CleanANSI(s string) string {
	s = csiRe.ReplaceAllString(s, "")
	s = oscRe.ReplaceAllString(s, "")
	return s
}
