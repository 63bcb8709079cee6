package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/datapilot/internal/executor"
	"github.com/ChamsBouzaiene/datapilot/internal/plan"
)

// nbformat 4 cell shapes. Markdown cells must not carry outputs or an
// execution count, so the two kinds are separate types.
type markdownCell struct {
	CellType string         `json:"cell_type"`
	Metadata map[string]any `json:"metadata"`
	Source   []string       `json:"source"`
}

type codeCell struct {
	CellType       string         `json:"cell_type"`
	Metadata       map[string]any `json:"metadata"`
	Source         []string       `json:"source"`
	Outputs        []cellOutput   `json:"outputs"`
	ExecutionCount int            `json:"execution_count"`
}

type cellOutput struct {
	OutputType string            `json:"output_type"`
	Name       string            `json:"name,omitempty"`
	Text       []string          `json:"text,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

type notebookDoc struct {
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
	Metadata      map[string]any `json:"metadata"`
	Cells         []any          `json:"cells"`
}

// Builder accumulates notebook cells during a run and reassembles a clean
// notebook at the end. It implements engine.Recorder.
type Builder struct {
	task         string
	notebooksDir string
	artifactsDir string
	startTime    time.Time
	cells        []any
	execCount    int
	tracker      *Tracker
	filename     string
}

// NewBuilder creates a Builder rooted at workspace. Generated notebooks go
// under workspace/generated, persisted images under workspace/images.
func NewBuilder(task, workspace string) *Builder {
	if workspace == "" {
		workspace = "./workspace"
	}
	b := &Builder{
		task:         task,
		notebooksDir: filepath.Join(workspace, "generated"),
		artifactsDir: filepath.Join(workspace, "images"),
		startTime:    time.Now(),
		tracker:      NewTracker(),
	}
	b.addMarkdown(b.header(false))
	return b
}

func (b *Builder) header(cleaned bool) string {
	var sb strings.Builder
	sb.WriteString("# Agent Analysis Notebook\n\n")
	fmt.Fprintf(&sb, "**Task:** %s\n\n", b.task)
	fmt.Fprintf(&sb, "**Generated:** %s\n\n", b.startTime.Format("2006-01-02 15:04:05"))
	sb.WriteString("**Agent Type:** Planner Agent (with dynamic task planning)\n\n")
	if cleaned {
		sb.WriteString("*This notebook was automatically cleaned: imports consolidated, failed cells removed.*\n\n")
	}
	sb.WriteString("---\n")
	return sb.String()
}

// Tracker exposes the underlying execution log.
func (b *Builder) Tracker() *Tracker { return b.tracker }

func (b *Builder) addMarkdown(content string) {
	b.cells = append(b.cells, markdownCell{
		CellType: "markdown",
		Metadata: map[string]any{},
		Source:   toSourceLines(content),
	})
}

func (b *Builder) addCode(code string, outputs []cellOutput) {
	b.execCount++
	if outputs == nil {
		outputs = []cellOutput{}
	}
	b.cells = append(b.cells, codeCell{
		CellType:       "code",
		Metadata:       map[string]any{},
		Source:         toSourceLines(code),
		Outputs:        outputs,
		ExecutionCount: b.execCount,
	})
}

// toSourceLines splits text into nbformat source lines, each newline-
// terminated except possibly the last.
func toSourceLines(s string) []string {
	lines := strings.Split(s, "\n")
	out := make([]string, len(lines))
	for i, line := range lines {
		if i < len(lines)-1 {
			out[i] = line + "\n"
		} else {
			out[i] = line
		}
	}
	return out
}

// TrackExecution records one attempt and persists any images it produced.
func (b *Builder) TrackExecution(code string, res executor.Result, stepDesc string) {
	seq := b.tracker.Len() + 1
	if len(res.Images) > 0 {
		b.saveImages(res.Images, seq)
	}
	b.tracker.Add(Record{
		Code:            code,
		Success:         res.Success,
		Output:          res.Output,
		Error:           res.Error,
		Images:          res.Images,
		StepDescription: stepDesc,
	})
}

// AddPlan appends the current plan as a markdown cell (incremental mode).
func (b *Builder) AddPlan(p *plan.State, updateReason string) {
	if p == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString("## Current Plan\n\n")
	if updateReason != "" {
		fmt.Fprintf(&sb, "*Plan updated: %s*\n\n", updateReason)
	}
	fmt.Fprintf(&sb, "```\n%s\n```\n", p.RawText)
	fmt.Fprintf(&sb, "\n**Progress:** %s steps completed\n", p.Progress())
	b.addMarkdown(sb.String())
}

// AddAnswer appends the final answer, preceded by the final plan status
// when one exists.
func (b *Builder) AddAnswer(answer string, finalPlan *plan.State) {
	if finalPlan != nil {
		b.addMarkdown(fmt.Sprintf(
			"## Final Plan Status\n\n```\n%s\n```\n\n**All %d steps completed!**",
			finalPlan.RawText, finalPlan.TotalSteps()))
	}
	b.addMarkdown(fmt.Sprintf("---\n\n## Final Answer\n\n%s", answer))
}

// GenerateClean builds a fresh notebook from the tracker: header, one
// consolidated import cell, only the successful cells (imports stripped),
// then the final plan status and answer.
func (b *Builder) GenerateClean(finalPlan *plan.State, answer string) *Builder {
	clean := &Builder{
		task:         b.task,
		notebooksDir: b.notebooksDir,
		artifactsDir: b.artifactsDir,
		startTime:    b.startTime,
		tracker:      b.tracker,
		filename:     b.filename,
	}
	clean.addMarkdown(clean.header(true))

	if imports := b.tracker.ConsolidatedImports(); imports != "" {
		clean.addMarkdown("## Setup & Imports")
		clean.addCode(imports, nil)
	}

	cells := b.tracker.SuccessfulCells()
	if len(cells) > 0 {
		clean.addMarkdown("## Analysis")
		for _, rec := range cells {
			if rec.StepDescription != "" {
				clean.addMarkdown("### " + rec.StepDescription)
			}
			clean.addCode(rec.Code, recordOutputs(rec))
		}
	}

	if answer != "" {
		clean.AddAnswer(answer, finalPlan)
	}
	return clean
}

func recordOutputs(rec Record) []cellOutput {
	var outputs []cellOutput
	if rec.Output != "" && rec.Output != "(No output)" {
		outputs = append(outputs, cellOutput{
			OutputType: "stream",
			Name:       "stdout",
			Text:       toSourceLines(rec.Output),
		})
	}
	for _, img := range rec.Images {
		outputs = append(outputs, cellOutput{
			OutputType: "display_data",
			Data:       map[string]string{img.MIME: img.Data},
			Metadata:   map[string]any{},
		})
	}
	return outputs
}

// Save writes the notebook as nbformat-4 JSON. An empty filename derives
// one from the run's start time; the name is remembered so incremental
// saves keep overwriting the same file.
func (b *Builder) Save(filename string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("analysis_%s.ipynb", b.startTime.Format("20060102_150405"))
	}
	b.filename = filename

	doc := notebookDoc{
		NBFormat:      4,
		NBFormatMinor: 5,
		Metadata: map[string]any{
			"kernelspec": map[string]any{
				"display_name": "Python 3",
				"language":     "python",
				"name":         "python3",
			},
			"language_info": map[string]any{"name": "python", "version": "3.11.0"},
		},
		Cells: b.cells,
	}

	if err := os.MkdirAll(b.notebooksDir, 0o755); err != nil {
		return "", fmt.Errorf("create notebooks dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal notebook: %w", err)
	}
	path := filepath.Join(b.notebooksDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write notebook: %w", err)
	}
	return path, nil
}

// SaveIncremental re-saves under the filename chosen on the first save.
func (b *Builder) SaveIncremental() (string, error) {
	return b.Save(b.filename)
}
