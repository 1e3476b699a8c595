package decode

import (
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
)

// Title returns the name to show for an event made from the file at path:
// the ID3 title if the file carries one, the file name without extension
// otherwise.
func Title(path string) string {
	if tag, err := id3v2.Open(path, id3v2.Options{Parse: true}); err == nil {
		title := strings.TrimSpace(tag.Title())
		tag.Close()
		if title != "" {
			return title
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
