// Package workspace inspects the working directory so the agent knows
// which data files it has to work with.
package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

var dataExtensions = map[string]bool{
	".csv":     true,
	".tsv":     true,
	".json":    true,
	".jsonl":   true,
	".parquet": true,
	".xlsx":    true,
	".xls":     true,
	".txt":     true,
	".db":      true,
	".sqlite":  true,
}

// Directories the agent itself generates; never offered as input data.
var generatedDirs = map[string]bool{
	"generated": true,
	"images":    true,
}

// ListDataFiles walks root and returns workspace-relative paths of data
// files the agent can analyze. Dot-directories and generated output dirs
// are skipped, and a .dpignore file (gitignore syntax) is honored when
// present.
func ListDataFiles(root string) ([]string, error) {
	var ign *ignore.GitIgnore
	if raw, err := os.ReadFile(filepath.Join(root, ".dpignore")); err == nil {
		ign = ignore.CompileIgnoreLines(strings.Split(string(raw), "\n")...)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") || generatedDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !dataExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		if ign != nil && ign.MatchesPath(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
