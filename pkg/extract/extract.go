// Package extract pulls readable text out of ebook files.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ErrUnsupportedFormat is returned for extensions with no extractor.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrNoText is returned when a document parses but yields no text.
var ErrNoText = errors.New("no text extracted")

// Text extracts the text of a document. The format is chosen from the
// extension of name; pages and chapters are separated by blank lines.
func Text(name string, data []byte) (string, error) {
	switch Format(name) {
	case "pdf":
		return fromPDF(data)
	case "epub":
		return fromEPUB(data)
	case "docx":
		return fromDOCX(data)
	case "txt", "md", "text":
		return fromPlain(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path.Ext(name))
	}
}

// Format is the lower-cased extension of name without the dot.
func Format(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(strings.TrimSpace(name))), ".")
}

func fromPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// skip unreadable pages instead of failing the whole book
			continue
		}
		if text = normalizeText(text); text != "" {
			pages = append(pages, text)
		}
	}
	return joinSections(pages)
}

func fromEPUB(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open epub: %w", err)
	}
	files := make([]*zip.File, 0, len(archive.File))
	for _, f := range archive.File {
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, ".xhtml") || strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm") {
			files = append(files, f)
		}
	}
	// Archive order is not guaranteed to be reading order; names usually are.
	sort.SliceStable(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	chapters := make([]string, 0, len(files))
	for _, f := range files {
		raw, err := readZipFile(f)
		if err != nil {
			return "", fmt.Errorf("read epub chapter: %w", err)
		}
		doc, err := html.Parse(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("parse epub html: %w", err)
		}
		if text := normalizeText(htmlText(doc)); text != "" {
			chapters = append(chapters, text)
		}
	}
	return joinSections(chapters)
}

func fromDOCX(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, f := range archive.File {
		if f.Name != "word/document.xml" {
			continue
		}
		raw, err := readZipFile(f)
		if err != nil {
			return "", fmt.Errorf("read docx body: %w", err)
		}
		paragraphs, err := docxParagraphs(raw)
		if err != nil {
			return "", fmt.Errorf("parse docx body: %w", err)
		}
		return joinSections(paragraphs)
	}
	return "", fmt.Errorf("docx body missing")
}

func fromPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, nil)
	}
	text := strings.TrimSpace(strings.ReplaceAll(string(data), "\x00", ""))
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// docxParagraphs collects the w:t runs of each w:p element.
func docxParagraphs(raw []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var (
		out    []string
		cur    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if p := normalizeText(cur.String()); p != "" {
					out = append(out, p)
				}
				cur.Reset()
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return out, nil
}

func joinSections(sections []string) (string, error) {
	if len(sections) == 0 {
		return "", ErrNoText
	}
	return strings.Join(sections, "\n\n"), nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func htmlText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" || node.Data == "head" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return buf.String()
}
