package document

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

const documentPart = "word/document.xml"

func (e *Extractor) extractDOCX(ctx context.Context, path string) (Text, error) {
	f, err := os.Open(path)
	if err != nil {
		return Text{}, fmt.Errorf("open docx %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Text{}, fmt.Errorf("stat docx %q: %w", path, err)
	}

	// go-docx treats a missing body part as an empty document.
	if err := requirePart(f, info.Size(), documentPart); err != nil {
		return Text{}, fmt.Errorf("docx %q: %w", path, err)
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return Text{}, fmt.Errorf("parse docx %q: %w", path, err)
	}

	paragraphs := collectParagraphs(doc.Document.Body.Items, nil)

	return e.join(ctx, "paragraph", len(paragraphs), func(idx int) (string, error) {
		return paragraphText(paragraphs[idx-1]), nil
	})
}

func requirePart(f *os.File, size int64, name string) error {
	archive, err := zip.NewReader(f, size)
	if err != nil {
		return err
	}
	for _, zf := range archive.File {
		if zf.Name == name {
			return nil
		}
	}
	return fmt.Errorf("missing %s", name)
}

// collectParagraphs flattens body items in document order, descending into table cells.
func collectParagraphs(items []any, out []*docx.Paragraph) []*docx.Paragraph {
	for _, item := range items {
		switch v := item.(type) {
		case *docx.Paragraph:
			out = append(out, v)
		case *docx.Table:
			out = collectTable(v, out)
		}
	}
	return out
}

func collectTable(t *docx.Table, out []*docx.Paragraph) []*docx.Paragraph {
	for _, row := range t.TableRows {
		for _, cell := range row.TableCells {
			out = append(out, cell.Paragraphs...)
			for _, nested := range cell.Tables {
				out = collectTable(nested, out)
			}
		}
	}
	return out
}

// paragraphText renders runs of a paragraph: text, tabs as a tab and breaks as
// a newline. Hyperlinks contribute their visible text, not the target.
func paragraphText(p *docx.Paragraph) string {
	var b strings.Builder
	for _, child := range p.Children {
		switch v := child.(type) {
		case *docx.Run:
			writeRun(&b, v)
		case *docx.Hyperlink:
			writeRun(&b, &v.Run)
		}
	}
	return b.String()
}

func writeRun(b *strings.Builder, r *docx.Run) {
	for _, child := range r.Children {
		switch v := child.(type) {
		case *docx.Text:
			b.WriteString(v.Text)
		case *docx.Tab:
			b.WriteByte('\t')
		case *docx.BarterRabbet:
			b.WriteByte('\n')
		}
	}
}
