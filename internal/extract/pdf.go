package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"
)

// PDF extracts one text per page.
type PDF struct {
	Logger *slog.Logger
}

// Extract reads every page of the PDF in src.Data.
func (p PDF) Extract(ctx context.Context, src Source) ([]string, error) {
	if len(src.Data) == 0 {
		return nil, ErrEmptySource
	}

	r, err := openPDF(src.Data)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", src.Name, err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := pageText(r, i)
		if err != nil {
			p.logger().Warn("Unreadable PDF page", "source", src.Name, "page", i, "error", err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func (p PDF) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// openPDF guards against the reader panicking on malformed trailers.
func openPDF(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// pageText returns "" for pages that cannot be decoded.
func pageText(r *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("decode page: %v", rec)
		}
	}()
	page := r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
