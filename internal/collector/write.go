package collector

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"loadswarm/internal/filelock"
)

// WriteSummary writes the JSON summary to path and a markdown and HTML
// rendering next to it. Every file is replaced atomically.
func WriteSummary(path string, s *Summary) error {
	var js bytes.Buffer
	if err := FormatJSON(&js, s); err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := filelock.AtomicWrite(path, js.Bytes()); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	var md bytes.Buffer
	FormatMarkdown(&md, s)
	if err := filelock.AtomicWrite(siblingPath(path, ".md"), md.Bytes()); err != nil {
		return fmt.Errorf("writing markdown summary: %w", err)
	}

	page, err := RenderHTML(s)
	if err != nil {
		return err
	}
	if err := filelock.AtomicWrite(siblingPath(path, ".html"), page); err != nil {
		return fmt.Errorf("writing html summary: %w", err)
	}
	return nil
}

// siblingPath swaps the extension of path: summary.json -> summary.md.
func siblingPath(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
