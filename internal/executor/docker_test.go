package executor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func muxFrame(stream byte, payload string) []byte {
	header := []byte{stream, 0, 0, 0, 0, 0, 0, byte(len(payload))}
	return append(header, payload...)
}

func TestDemuxLogs(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(muxFrame(1, "hello\n"))
	buf.Write(muxFrame(2, "oops\n"))
	buf.Write(muxFrame(1, "world\n"))

	stdout, stderr := demuxLogs(&buf)
	if stdout != "hello\nworld" {
		t.Fatalf("unexpected stdout: %q", stdout)
	}
	if stderr != "oops" {
		t.Fatalf("unexpected stderr: %q", stderr)
	}
}

func TestAfterBoundary(t *testing.T) {
	in := "old output\n" + cellBoundary + "\nfresh output"
	if got := afterBoundary(in); got != "fresh output" {
		t.Fatalf("expected only fresh output, got %q", got)
	}
	if got := afterBoundary("no marker here"); got != "no marker here" {
		t.Fatalf("text without marker must pass through, got %q", got)
	}
	// Replay preludes repeat the marker; only the last one counts.
	in = cellBoundary + "\na\n" + cellBoundary + "\nb"
	if got := afterBoundary(in); got != "b" {
		t.Fatalf("expected output after last marker, got %q", got)
	}
}

func TestWriteScriptReplaysPriorSnippets(t *testing.T) {
	e := &DockerExecutor{
		workspace: t.TempDir(),
		prior:     []string{"import pandas as pd", "df = pd.DataFrame()"},
	}

	path, err := e.writeScript("print(len(df))")
	if err != nil {
		t.Fatalf("write script: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	script := string(raw)

	iPandas := strings.Index(script, "import pandas as pd")
	iDF := strings.Index(script, "df = pd.DataFrame()")
	iMarker := strings.Index(script, cellBoundary)
	iNew := strings.Index(script, "print(len(df))")
	if iPandas < 0 || iDF < 0 || iMarker < 0 || iNew < 0 {
		t.Fatalf("script missing sections:\n%s", script)
	}
	if !(iPandas < iDF && iDF < iMarker && iMarker < iNew) {
		t.Fatalf("expected prior snippets, marker, then new cell in order:\n%s", script)
	}
}

func TestParseCPU(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"2", 2},
		{"1.5", 1},
		{"", 2},
		{"-1", 2},
	}
	for _, c := range cases {
		if got := parseCPU(c.in); got != c.want {
			t.Errorf("parseCPU(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestArtifactWatcherCollectsImages(t *testing.T) {
	dir := t.TempDir()
	aw, err := watchArtifacts(dir)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "figure.png"), []byte("png bytes"), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write txt: %v", err)
	}

	// Give fsnotify a moment to deliver the events.
	time.Sleep(100 * time.Millisecond)
	images := aw.stop()

	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}
	if images[0].MIME != "image/png" {
		t.Fatalf("unexpected mime %q", images[0].MIME)
	}
	if images[0].Data == "" {
		t.Fatal("expected base64 payload")
	}
}

func TestArtifactWatcherSVGKeptAsText(t *testing.T) {
	dir := t.TempDir()
	aw, err := watchArtifacts(dir)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "chart.svg"), []byte("<svg></svg>"), 0o644); err != nil {
		t.Fatalf("write svg: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	images := aw.stop()

	if len(images) != 1 || images[0].Data != "<svg></svg>" {
		t.Fatalf("expected svg carried as text, got %+v", images)
	}
}
