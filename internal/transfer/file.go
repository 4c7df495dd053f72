package transfer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// File is an upload source. Content must yield exactly Size bytes.
type File struct {
	Name    string
	Type    string
	Size    int64
	Content io.Reader

	closer io.Closer
}

// Close releases the underlying handle when the file was opened from disk.
func (f File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// OpenFile opens path for upload and sniffs its MIME type from the content.
func OpenFile(path string) (File, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, fmt.Errorf("detect type of %s: %w", path, err)
	}

	fh, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		fh.Close()
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	return File{
		Name:    filepath.Base(path),
		Type:    mtype.String(),
		Size:    info.Size(),
		Content: fh,
		closer:  fh,
	}, nil
}

// BytesFile wraps in-memory content. An empty contentType is detected from the data.
func BytesFile(name, contentType string, data []byte) File {
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	return File{
		Name:    name,
		Type:    contentType,
		Size:    int64(len(data)),
		Content: bytes.NewReader(data),
	}
}
