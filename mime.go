package autorefresh

import (
	"fmt"
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// DetectType guesses the content type of the file at path, first from its
// extension and then by sniffing its contents.
func DetectType(path string) (string, error) {
	if contentType := mime.TypeByExtension(filepath.Ext(path)); contentType != "" {
		return contentType, nil
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("autorefresh: unable to detect type of %q: %w", path, err)
	}
	return mtype.String(), nil
}
