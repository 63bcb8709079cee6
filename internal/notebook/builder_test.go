package notebook

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChamsBouzaiene/datapilot/internal/executor"
	"github.com/ChamsBouzaiene/datapilot/internal/plan"
)

func TestGenerateCleanNotebookStructure(t *testing.T) {
	ws := t.TempDir()
	b := NewBuilder("analyze sales", ws)

	b.TrackExecution("import pandas as pd\nbroken(",
		executor.Result{Success: false, Output: "SyntaxError"}, "load data")
	b.TrackExecution("import pandas as pd\ndf = pd.read_csv('s.csv')\nprint(df.shape)",
		executor.Result{Success: true, Output: "(100, 4)"}, "load data")

	parsed := plan.Parse("<plan>\n1. [x] load data\n</plan>")
	clean := b.GenerateClean(parsed.Plan, "There are 100 rows.")

	path, err := clean.Save("")
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read notebook: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("notebook is not valid JSON: %v", err)
	}
	if doc["nbformat"].(float64) != 4 {
		t.Fatalf("expected nbformat 4, got %v", doc["nbformat"])
	}

	text := string(raw)
	if !strings.Contains(text, "import pandas as pd") {
		t.Fatal("expected consolidated import in notebook")
	}
	if strings.Contains(text, "broken(") {
		t.Fatal("failed cell must not appear in clean notebook")
	}
	if !strings.Contains(text, "df = pd.read_csv") {
		t.Fatal("successful cell body missing")
	}
	if !strings.Contains(text, "There are 100 rows.") {
		t.Fatal("final answer missing")
	}
	if !strings.Contains(text, "Final Plan Status") {
		t.Fatal("final plan status missing")
	}
}

func TestCleanNotebookSingleCodeUnit(t *testing.T) {
	b := NewBuilder("t", t.TempDir())
	b.TrackExecution("fail()", executor.Result{Success: false, Output: "boom"}, "")
	b.TrackExecution("import os\nprint(os.getcwd())", executor.Result{Success: true, Output: "/work"}, "")

	clean := b.GenerateClean(nil, "")

	var codeCells int
	for _, c := range clean.cells {
		if cc, ok := c.(codeCell); ok {
			codeCells++
			if strings.Contains(strings.Join(cc.Source, ""), "fail()") {
				t.Fatal("failed code leaked into clean notebook")
			}
		}
	}
	// One import cell plus one surviving analysis cell.
	if codeCells != 2 {
		t.Fatalf("expected 2 code cells, got %d", codeCells)
	}
}

func TestSaveIncrementalReusesFilename(t *testing.T) {
	b := NewBuilder("t", t.TempDir())
	first, err := b.SaveIncremental()
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	second, err := b.SaveIncremental()
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if first != second {
		t.Fatalf("incremental saves must reuse the filename: %q vs %q", first, second)
	}
}

func TestImagePersistence(t *testing.T) {
	ws := t.TempDir()
	b := NewBuilder("t", ws)

	png := base64.StdEncoding.EncodeToString([]byte("fake png bytes"))
	b.TrackExecution("plot()", executor.Result{
		Success: true,
		Output:  "",
		Images: []executor.Image{
			{MIME: "image/png", Data: png},
			{MIME: "image/svg+xml", Data: "<svg></svg>"},
			{MIME: "application/unknown", Data: png},
		},
	}, "")

	entries, err := os.ReadDir(filepath.Join(ws, "images"))
	if err != nil {
		t.Fatalf("read images dir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 image files, got %d", len(entries))
	}

	var exts []string
	for _, e := range entries {
		exts = append(exts, filepath.Ext(e.Name()))
		if !strings.HasPrefix(e.Name(), "figure_") {
			t.Fatalf("unexpected image name %q", e.Name())
		}
		if !strings.Contains(e.Name(), "_1_") {
			t.Fatalf("expected execution sequence 1 in name %q", e.Name())
		}
	}
	// Unknown MIME defaults to png, so two .png files plus one .svg.
	var pngs, svgs int
	for _, ext := range exts {
		switch ext {
		case ".png":
			pngs++
		case ".svg":
			svgs++
		}
	}
	if pngs != 2 || svgs != 1 {
		t.Fatalf("expected 2 png + 1 svg, got %d png %d svg", pngs, svgs)
	}
}

func TestBadImageDoesNotAbortOthers(t *testing.T) {
	ws := t.TempDir()
	b := NewBuilder("t", ws)

	good := base64.StdEncoding.EncodeToString([]byte("ok"))
	b.TrackExecution("plot()", executor.Result{
		Success: true,
		Images: []executor.Image{
			{MIME: "image/png", Data: "%%% not base64 %%%"},
			{MIME: "image/png", Data: good},
		},
	}, "")

	entries, err := os.ReadDir(filepath.Join(ws, "images"))
	if err != nil {
		t.Fatalf("read images dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the valid image saved despite the bad one, got %d files", len(entries))
	}
}
