package notebook

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ChamsBouzaiene/datapilot/internal/executor"
)

var mimeExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/svg+xml": ".svg",
}

func extensionForMIME(mime string) string {
	if ext, ok := mimeExtensions[mime]; ok {
		return ext
	}
	return ".png"
}

// saveImages persists one file per image under the artifacts directory,
// named from the run's start time, the execution sequence number, and the
// image index. A failure to save one image never aborts the rest.
func (b *Builder) saveImages(images []executor.Image, execSeq int) {
	if err := os.MkdirAll(b.artifactsDir, 0o755); err != nil {
		log.Printf("WARNING: cannot create artifacts dir %s: %v", b.artifactsDir, err)
		return
	}

	stamp := b.startTime.Format("150405")
	for i, img := range images {
		name := fmt.Sprintf("figure_%s_%d_%d%s", stamp, execSeq, i, extensionForMIME(img.MIME))
		path := filepath.Join(b.artifactsDir, name)

		var err error
		if img.MIME == "image/svg+xml" {
			// SVG payloads are text, not base64.
			err = os.WriteFile(path, []byte(img.Data), 0o644)
		} else {
			var raw []byte
			raw, err = base64.StdEncoding.DecodeString(img.Data)
			if err == nil {
				err = os.WriteFile(path, raw, 0o644)
			}
		}
		if err != nil {
			log.Printf("WARNING: failed to save image %s: %v", name, err)
		}
	}
}
