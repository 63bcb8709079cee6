// Package notebook reconstructs a clean, runnable notebook from the messy
// execution history of a run: every attempt is logged, but only successful
// cells survive, with their imports hoisted into one consolidated block.
package notebook

import (
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/datapilot/internal/executor"
)

// Record is one logged execution attempt. Records are immutable after
// creation and never pruned.
type Record struct {
	Code            string
	Success         bool
	Output          string
	Error           string
	Images          []executor.Image
	StepDescription string
}

// Python standard-library modules, matched on the first path segment of an
// import line. Used to group the consolidated import block.
var stdlibModules = map[string]bool{
	"os": true, "sys": true, "re": true, "json": true, "datetime": true,
	"pathlib": true, "collections": true, "itertools": true,
	"functools": true, "typing": true, "warnings": true, "math": true,
	"random": true, "time": true, "copy": true, "io": true,
	"pickle": true, "csv": true, "logging": true, "abc": true,
}

// Tracker is an append-only log of execution attempts. It collects imports
// from every attempt (failed ones included, since a failed cell may still
// have introduced a dependency a later cell relies on) and separately
// tracks imports from successful attempts.
type Tracker struct {
	records     []Record
	allImports  map[string]bool
	usedImports map[string]bool
}

func NewTracker() *Tracker {
	return &Tracker{
		allImports:  make(map[string]bool),
		usedImports: make(map[string]bool),
	}
}

// Add appends one attempt and harvests its import lines.
func (t *Tracker) Add(rec Record) {
	t.records = append(t.records, rec)
	for _, imp := range extractImports(rec.Code) {
		t.allImports[imp] = true
		if rec.Success {
			t.usedImports[imp] = true
		}
	}
}

// Len returns the number of recorded attempts.
func (t *Tracker) Len() int { return len(t.records) }

// Records returns a copy of the attempt log, in insertion order.
func (t *Tracker) Records() []Record {
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// extractImports collects import-style lines from code, with inline
// comments stripped.
func extractImports(code string) []string {
	var out []string
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "import ") && !strings.HasPrefix(line, "from ") {
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// removeImports strips import lines from code and trims the blank lines
// that stripping leaves at the top.
func removeImports(code string) string {
	var lines []string
	for _, line := range strings.Split(code, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "import ") || strings.HasPrefix(stripped, "from ") {
			continue
		}
		lines = append(lines, line)
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

// ConsolidatedImports renders every collected import, standard library
// first, then third-party, each group sorted, with one blank line between
// the groups when both are present.
func (t *Tracker) ConsolidatedImports() string {
	if len(t.allImports) == 0 {
		return ""
	}

	all := make([]string, 0, len(t.allImports))
	for imp := range t.allImports {
		all = append(all, imp)
	}
	sort.Strings(all)

	var stdlib, thirdParty []string
	for _, imp := range all {
		if isStdlibImport(imp) {
			stdlib = append(stdlib, imp)
		} else {
			thirdParty = append(thirdParty, imp)
		}
	}

	var result []string
	result = append(result, stdlib...)
	if len(thirdParty) > 0 {
		if len(stdlib) > 0 {
			result = append(result, "")
		}
		result = append(result, thirdParty...)
	}
	return strings.Join(result, "\n")
}

func isStdlibImport(imp string) bool {
	parts := strings.Fields(imp)
	if len(parts) < 2 {
		return false
	}
	module := parts[1]
	module = strings.SplitN(module, ".", 2)[0]
	module = strings.SplitN(module, ",", 2)[0]
	return stdlibModules[module]
}

// SuccessfulCells returns the successful attempts with import lines
// stripped from their bodies. Attempts whose body is empty after
// stripping are dropped entirely.
func (t *Tracker) SuccessfulCells() []Record {
	var cells []Record
	for _, rec := range t.records {
		if !rec.Success {
			continue
		}
		clean := removeImports(rec.Code)
		if strings.TrimSpace(clean) == "" {
			continue
		}
		cells = append(cells, Record{
			Code:            clean,
			Success:         true,
			Output:          rec.Output,
			Images:          rec.Images,
			StepDescription: rec.StepDescription,
		})
	}
	return cells
}
