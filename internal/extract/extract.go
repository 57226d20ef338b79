// Package extract turns raw document bytes into ordered page texts.
package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrEmptySource = errors.New("source has no content")
	ErrUnsupported = errors.New("unsupported document type")
)

// Source is one file handed to ingestion.
type Source struct {
	Name string // File name or path; its extension selects the extractor
	Data []byte
}

// Extractor returns the pages of a document in reading order.
// Unreadable pages come back as empty strings rather than errors.
type Extractor interface {
	Extract(ctx context.Context, src Source) ([]string, error)
}

// Registry dispatches to an Extractor by file extension.
type Registry struct {
	byExt    map[string]Extractor
	fallback Extractor
}

// NewRegistry returns a registry for PDF, Markdown and plain text.
// Unknown extensions are read as plain text.
func NewRegistry() *Registry {
	md := NewMarkdown()
	r := &Registry{
		byExt:    map[string]Extractor{},
		fallback: Text{},
	}
	r.Register(PDF{}, ".pdf")
	r.Register(md, ".md", ".markdown")
	r.Register(Text{}, ".txt", ".text")
	return r
}

// Register maps extensions (with leading dot) to e.
func (r *Registry) Register(e Extractor, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = e
	}
}

// SetFallback sets the extractor for unknown extensions. nil rejects them.
func (r *Registry) SetFallback(e Extractor) { r.fallback = e }

// Supports reports whether name has a registered extension.
func (r *Registry) Supports(name string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extract picks the extractor for src.Name and runs it.
func (r *Registry) Extract(ctx context.Context, src Source) ([]string, error) {
	e, ok := r.byExt[strings.ToLower(filepath.Ext(src.Name))]
	if !ok {
		if r.fallback == nil {
			return nil, ErrUnsupported
		}
		e = r.fallback
	}
	return e.Extract(ctx, src)
}
