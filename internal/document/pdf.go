package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

func (e *Extractor) extractPDF(ctx context.Context, path string) (Text, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Text{}, fmt.Errorf("open pdf %q: %w", path, err)
	}
	defer f.Close()

	return e.join(ctx, "page", r.NumPage(), func(idx int) (string, error) {
		page := r.Page(idx)
		if page.V.IsNull() {
			return "", errors.New("page has no content")
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(text, "\n"), nil
	})
}
