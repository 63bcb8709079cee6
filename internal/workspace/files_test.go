package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestListDataFiles(t *testing.T) {
	root := t.TempDir()
	write(t, root, "sales.csv", "a,b")
	write(t, root, "raw/data.parquet", "")
	write(t, root, "notes.md", "not data")
	write(t, root, "script.py", "print(1)")
	write(t, root, ".hidden/secret.csv", "")
	write(t, root, "generated/analysis.ipynb", "{}")
	write(t, root, "images/figure_1.png", "")

	files, err := ListDataFiles(root)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{filepath.Join("raw", "data.parquet"), "sales.csv"}
	if len(files) != len(want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, files)
		}
	}
}

func TestListDataFilesHonorsDpignore(t *testing.T) {
	root := t.TempDir()
	write(t, root, "keep.csv", "")
	write(t, root, "skip.csv", "")
	write(t, root, "tmp/cache.json", "")
	write(t, root, ".dpignore", "skip.csv\ntmp/\n")

	files, err := ListDataFiles(root)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 1 || files[0] != "keep.csv" {
		t.Fatalf("expected only keep.csv, got %v", files)
	}
}
