package rag

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PageSeparator joins the text of consecutive pages.
const PageSeparator = "\n"

var pdfMagic = []byte("%PDF-")

// Extract turns an uploaded document into plain text. The format is chosen
// from the PDF magic bytes first and the file extension second. Any failure
// is reported as ErrContent.
func Extract(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrContent)
	}
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case bytes.HasPrefix(data, pdfMagic) || ext == ".pdf":
		return ExtractPDF(data)
	case ext == ".md" || ext == ".markdown":
		return ExtractMarkdown(data)
	case ext == ".txt" || ext == "" || utf8.Valid(data):
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: text document is not valid utf-8", ErrContent)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: unsupported document type %q", ErrContent, ext)
	}
}

// ExtractPDF reads every page in order and appends PageSeparator after each
// page's text.
func ExtractPDF(data []byte) (out string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = fmt.Errorf("%w: malformed pdf: %v", ErrContent, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %w", ErrContent, err)
	}
	pages := reader.NumPage()
	if pages <= 0 {
		return "", fmt.Errorf("%w: pdf has no pages", ErrContent)
	}
	fonts := make(map[string]*pdf.Font)
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("%w: read pdf page %d: %w", ErrContent, i, err)
		}
		sb.WriteString(content)
		sb.WriteString(PageSeparator)
	}
	return sb.String(), nil
}

// ExtractMarkdown keeps the text of every top-level block, one block per line.
func ExtractMarkdown(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: markdown document is not valid utf-8", ErrContent)
	}
	md := goldmark.New()
	reader := text.NewReader(data)
	doc := md.Parser().Parse(reader)
	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if txt := blockText(node, data); txt != "" {
			blocks = append(blocks, txt)
		}
	}
	return strings.Join(blocks, "\n"), nil
}

func blockText(n ast.Node, source []byte) string {
	switch block := n.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var sb strings.Builder
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			sb.Write(line.Value(source))
		}
		return strings.TrimSpace(sb.String())
	}
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node != n && node.Type() == ast.TypeBlock {
			spaceOnce(&sb)
		}
		switch v := node.(type) {
		case *ast.Text:
			sb.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				spaceOnce(&sb)
			}
		case *ast.CodeSpan:
			for c := v.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					sb.Write(t.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func spaceOnce(sb *strings.Builder) {
	if sb.Len() == 0 {
		return
	}
	if s := sb.String(); s[len(s)-1] != ' ' {
		sb.WriteByte(' ')
	}
}
