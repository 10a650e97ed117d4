// Package export packages finished images for download.
package export

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"alterego/models"
)

// ErrNothingToExport is returned when a session has no finished images.
var ErrNothingToExport = errors.New("export: no finished images")

// FileName is the download name of one image:
// "alterego-" + caption lowercased with each whitespace rune replaced by
// "-" + ".png".
//
//	FileName("1950s Film Noir") // "alterego-1950s-film-noir.png"
func FileName(caption string) string {
	var b strings.Builder
	b.WriteString("alterego-")
	for _, r := range strings.ToLower(caption) {
		if unicode.IsSpace(r) {
			r = '-'
		}
		b.WriteRune(r)
	}
	b.WriteString(".png")
	return b.String()
}

// WriteZip writes the done images of session to w as a zip archive, in
// selection order. Entry names come from FileName; a repeated name gets a
// numeric suffix. Images are stored as decoded bytes.
func WriteZip(w io.Writer, session models.Session, modified time.Time) (int, error) {
	images := session.DoneImages()
	if len(images) == 0 {
		return 0, ErrNothingToExport
	}

	zw := zip.NewWriter(w)
	used := make(map[string]int, len(images))
	for _, img := range images {
		url, _ := img.URL()
		_, data, err := url.Decode()
		if err != nil {
			zw.Close()
			return 0, fmt.Errorf("export: %s: %w", img.Caption(), err)
		}

		name := FileName(img.Caption())
		if n := used[name]; n > 0 {
			name = strings.TrimSuffix(name, ".png") + fmt.Sprintf("-%d.png", n+1)
		}
		used[FileName(img.Caption())]++

		// PNG is already compressed
		f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: modified})
		if err != nil {
			zw.Close()
			return 0, fmt.Errorf("export: create %s: %w", name, err)
		}
		if _, err := f.Write(data); err != nil {
			zw.Close()
			return 0, fmt.Errorf("export: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("export: finish archive: %w", err)
	}
	return len(images), nil
}

// ArchiveName is the download name of a session archive.
func ArchiveName(t time.Time) string {
	return "alterego-" + t.UTC().Format("20060102-150405") + ".zip"
}
