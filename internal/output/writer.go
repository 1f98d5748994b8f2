// Package output writes serialized flights next to their source logs or into
// an output directory, optionally gzip-compressed.
package output

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// Extension of written artifacts
const (
	Extension     = ".geojson"
	GzipExtension = ".gz"
)

// DerivedPath replaces the extension of input with .geojson
func DerivedPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + Extension
}

// Writer writes GeoJSON artifacts
type Writer struct {
	outputDir string
	compress  bool
	logger    *logrus.Logger
}

// NewWriter creates a writer. An empty outputDir writes next to the input.
func NewWriter(outputDir string, compress bool, logger *logrus.Logger) (*Writer, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return &Writer{outputDir: outputDir, compress: compress, logger: logger}, nil
}

// PathFor returns where the artifact for input is written
func (w *Writer) PathFor(input string) string {
	path := DerivedPath(input)
	if w.outputDir != "" {
		path = filepath.Join(w.outputDir, filepath.Base(path))
	}
	if w.compress {
		path += GzipExtension
	}
	return path
}

// Write stores text as the artifact of input and returns its path
func (w *Writer) Write(input, text string) (string, error) {
	path := w.PathFor(input)
	if err := w.WriteFile(path, text); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile stores text at path, gzip-compressed if the writer compresses.
// The file is replaced atomically.
func (w *Writer) WriteFile(path, text string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := w.writeTo(tmp, path, text)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set output file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output file into place: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"file":       path,
		"size":       humanize.Bytes(uint64(size)),
		"compressed": w.compress,
	}).Info("Wrote GeoJSON")
	return nil
}

func (w *Writer) writeTo(dst io.Writer, path, text string) (int64, error) {
	if !w.compress {
		n, err := io.WriteString(dst, text)
		if err != nil {
			return 0, fmt.Errorf("failed to write output file: %w", err)
		}
		return int64(n), nil
	}

	counter := &countingWriter{w: dst}
	gzWriter := gzip.NewWriter(counter)
	gzWriter.Name = strings.TrimSuffix(filepath.Base(path), GzipExtension)
	gzWriter.ModTime = time.Now()

	if _, err := io.WriteString(gzWriter, text); err != nil {
		return 0, fmt.Errorf("failed to compress output: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return 0, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return counter.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
