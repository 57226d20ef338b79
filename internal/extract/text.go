package extract

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Text treats the whole source as a single page.
type Text struct{}

// Extract returns the source as one page, with CRLF normalised and invalid UTF-8 replaced.
func (Text) Extract(ctx context.Context, src Source) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := string(src.Data)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return []string{s}, nil
}
