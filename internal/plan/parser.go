package plan

import (
	"regexp"
	"strconv"
	"strings"
)

// The response grammar is a fixed, ordered list of named delimiter pairs.
// Every block is optional and the first occurrence of a block wins; any
// later duplicate of the same tag is ignored.
var blockTags = []string{"plan", "think", "plan_update", "code", "answer"}

// Parsed is the result of scanning one LLM response.
type Parsed struct {
	Plan         *State // nil when the response carries no <plan> block
	Code         string // contents of the first <code> block, fences stripped
	Thinking     string // contents of <think>, informational only
	UpdateReason string // contents of <plan_update>, shown with PLAN_UPDATED
	HasAnswer    bool   // an <answer> tag is present (gating happens in the engine)
	Answer       string // extracted answer text when HasAnswer
}

var stepLineRe = regexp.MustCompile(`^\s*(\d+)\.\s*\[([ xX])\]\s*(.+?)\s*$`)

// Parse scans raw LLM response text for the tagged blocks and the plan
// checklist. Absent blocks are not errors; later rounds routinely omit
// the plan or the code.
func Parse(text string) Parsed {
	blocks := extractBlocks(text)

	p := Parsed{
		Thinking:     strings.TrimSpace(blocks["think"]),
		UpdateReason: strings.TrimSpace(blocks["plan_update"]),
	}

	if raw, ok := blocks["plan"]; ok {
		p.Plan = parseSteps(raw)
	}
	if raw, ok := blocks["code"]; ok {
		p.Code = stripFences(raw)
	}
	if raw, ok := blocks["answer"]; ok {
		p.HasAnswer = true
		p.Answer = strings.TrimSpace(raw)
	}
	return p
}

// extractBlocks finds the first occurrence of each known tag. A missing
// closing tag consumes the rest of the text: stop markers routinely cut
// the stream right before </code> or </answer>.
func extractBlocks(text string) map[string]string {
	blocks := make(map[string]string, len(blockTags))
	for _, tag := range blockTags {
		open := "<" + tag + ">"
		start := strings.Index(text, open)
		if start == -1 {
			continue
		}
		body := text[start+len(open):]
		if end := strings.Index(body, "</"+tag+">"); end != -1 {
			body = body[:end]
		}
		blocks[tag] = body
	}
	return blocks
}

// parseSteps parses checkbox lines into a State. Lines that do not match
// the `N. [x] description` shape are skipped; the indices recorded are the
// ones written in the text, not recomputed positions.
func parseSteps(raw string) *State {
	state := &State{RawText: strings.TrimSpace(raw)}
	for _, line := range strings.Split(raw, "\n") {
		m := stepLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		state.Steps = append(state.Steps, Step{
			Index:       idx,
			Description: m[3],
			Completed:   m[2] == "x" || m[2] == "X",
		})
	}
	if len(state.Steps) == 0 {
		return nil
	}
	return state
}

// stripFences removes a surrounding markdown code fence, which some models
// add inside the <code> tag despite the prompt.
func stripFences(code string) string {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "```") {
		return code
	}
	lines := strings.Split(code, "\n")
	if len(lines) < 2 {
		return code
	}
	lines = lines[1:] // drop ```python / ```
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
