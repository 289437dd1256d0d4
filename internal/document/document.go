package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrUnsupportedFormat is returned for files that are neither PDF nor DOCX.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Text is the plain text of a document. Units counts pages or paragraphs,
// Empty lists the 1-based units that yielded no text and were substituted with "".
type Text struct {
	Content string
	Units   int
	Empty   []int
}

type Extractor struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract reads the document at path and returns its text. A single unreadable
// page or paragraph never fails the whole document.
func (e *Extractor) Extract(ctx context.Context, path string) (Text, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		text Text
		err  error
	)

	switch ext {
	case ".pdf":
		text, err = e.extractPDF(ctx, path)
	case ".docx":
		text, err = e.extractDOCX(ctx, path)
	default:
		return Text{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Text{}, err
	}

	e.logger.Debug("document extracted",
		zap.String("path", path),
		zap.Int("units", text.Units),
		zap.Ints("empty_units", text.Empty),
		zap.Int("length", len(text.Content)),
	)

	return text, nil
}

// unitReader yields the text of one page or paragraph.
type unitReader func(idx int) (string, error)

// join reads n units in order and joins them with newlines. Failing or
// panicking units become empty strings.
func (e *Extractor) join(ctx context.Context, kind string, n int, read unitReader) (Text, error) {
	chunks := make([]string, 0, n)
	var empty []int

	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return Text{}, err
		}

		chunk, err := safeRead(read, i)
		if err != nil {
			e.logger.Debug("substituting empty text",
				zap.String("unit", kind),
				zap.Int("index", i),
				zap.Error(err),
			)
			chunk = ""
		}
		if chunk == "" {
			empty = append(empty, i)
		}
		chunks = append(chunks, chunk)
	}

	return Text{Content: strings.Join(chunks, "\n"), Units: n, Empty: empty}, nil
}

func safeRead(read unitReader, idx int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return read(idx)
}
