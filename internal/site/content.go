package site

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// newMarkdown returns the converter for .md fragments. Fragments are written
// by the site owner, so raw HTML inside them is passed through.
func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
}

// loadFragment finds the custom content for a project: <slug>.html is used
// verbatim, otherwise <slug>.md is converted. No file means no fragment.
func loadFragment(dir, slug string, md goldmark.Markdown) (template.HTML, error) {
	if dir == "" {
		return "", nil
	}

	raw, err := readOptional(filepath.Join(dir, slug+".html"))
	if err != nil {
		return "", err
	}
	if raw != nil {
		return template.HTML(raw), nil
	}

	mdPath := filepath.Join(dir, slug+".md")
	raw, err = readOptional(mdPath)
	if err != nil || raw == nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := md.Convert(raw, &buf); err != nil {
		return "", fmt.Errorf("failed to convert %s: %w", mdPath, err)
	}
	return template.HTML(buf.String()), nil
}

// readOptional returns nil, nil when the file does not exist
func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
