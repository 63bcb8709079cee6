package executor

import (
	"encoding/base64"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var imageMIMEs = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".svg":  "image/svg+xml",
}

// artifactWatcher collects image files the executing code writes into the
// workspace, so figure outputs surface in Result.Images even though the
// container has no display.
type artifactWatcher struct {
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	seen    map[string]bool
	done    chan struct{}
}

func watchArtifacts(dir string) (*artifactWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	aw := &artifactWatcher{
		watcher: w,
		seen:    make(map[string]bool),
		done:    make(chan struct{}),
	}
	go aw.loop()
	return aw, nil
}

func (aw *artifactWatcher) loop() {
	defer close(aw.done)
	for {
		select {
		case ev, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			ext := strings.ToLower(filepath.Ext(ev.Name))
			if _, isImage := imageMIMEs[ext]; !isImage {
				continue
			}
			aw.mu.Lock()
			aw.seen[ev.Name] = true
			aw.mu.Unlock()
		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("WARNING: artifact watcher: %v", err)
		}
	}
}

// stop closes the watcher and loads every collected file. Files that
// vanished or cannot be read are skipped.
func (aw *artifactWatcher) stop() []Image {
	aw.watcher.Close()
	<-aw.done

	aw.mu.Lock()
	paths := make([]string, 0, len(aw.seen))
	for p := range aw.seen {
		paths = append(paths, p)
	}
	aw.mu.Unlock()
	sort.Strings(paths)

	var images []Image
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		mime := imageMIMEs[strings.ToLower(filepath.Ext(p))]
		data := base64.StdEncoding.EncodeToString(raw)
		if mime == "image/svg+xml" {
			// SVG is carried as text everywhere else in the pipeline.
			data = string(raw)
		}
		images = append(images, Image{MIME: mime, Data: data})
	}
	return images
}
