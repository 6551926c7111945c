// Package pdfcontent reads the accessibility-relevant structure of a PDF:
// page text, the tagged structure tree (headings, figures, tables, links),
// placed images and form widgets.
package pdfcontent

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

type Document struct {
	Title  string
	Lang   string
	Tagged bool
	Pages  []Page
}

type Page struct {
	Number   int
	Text     string
	Tables   [][][]string
	Images   []Image
	Headings []Heading
	Fields   []Field
	Links    []Link
}

type Image struct {
	Alt     string
	Caption string
	// Coverage is the fraction of the page area covered, 0 when unknown.
	Coverage float64
}

type Heading struct {
	Level int
	Text  string
}

type Field struct {
	Name  string
	Label string
}

type Link struct {
	Text   string
	Target string
}

// Parse reads the whole document. Malformed pages are skipped rather than
// failing the document; a document that cannot be opened is an error.
func Parse(data io.ReaderAt, size int64) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	trailer := reader.Trailer()
	root := trailer.Key("Root")
	doc = &Document{
		Title: strings.TrimSpace(trailer.Key("Info").Key("Title").Text()),
		Lang:  strings.TrimSpace(root.Key("Lang").Text()),
	}

	n := reader.NumPage()
	scans := make(map[int]*pageScan, n)
	structParents := make(map[int64]int, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		p := Page{Number: i}
		p.Text = plainText(page)
		scan := scanPage(page)
		scans[i] = scan
		p.Fields = widgets(page)
		if sp := page.V.Key("StructParents"); sp.Kind() == pdf.Integer {
			structParents[sp.Int64()] = i
		}
		doc.Pages = append(doc.Pages, p)
	}

	treeRoot := root.Key("StructTreeRoot")
	doc.Tagged = treeRoot.Kind() == pdf.Dict && !treeRoot.Key("K").IsNull()

	var tree *structTree
	if doc.Tagged {
		tree = walkStructTree(treeRoot, structParents, scans)
	}

	for i := range doc.Pages {
		p := &doc.Pages[i]
		scan := scans[p.Number]
		page := reader.Page(p.Number)
		if tree != nil {
			p.Headings = tree.headings[p.Number]
			p.Tables = tree.tables[p.Number]
			p.Images = tree.figures[p.Number]
			p.Links = tree.links[p.Number]
		} else if scan != nil {
			p.Images = scan.untaggedImages()
		}
		if len(p.Links) == 0 {
			p.Links = linkAnnotations(page)
		}
	}
	return doc, nil
}

func plainText(page pdf.Page) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()
	t, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return t
}

func widgets(page pdf.Page) []Field {
	annots := page.V.Key("Annots")
	var out []Field
	for i := 0; i < annots.Len(); i++ {
		a := annots.Index(i)
		if a.Key("Subtype").Name() != "Widget" {
			continue
		}
		f := Field{
			Name:  inheritedText(a, "T"),
			Label: inheritedText(a, "TU"),
		}
		out = append(out, f)
	}
	return out
}

func linkAnnotations(page pdf.Page) []Link {
	annots := page.V.Key("Annots")
	var out []Link
	for i := 0; i < annots.Len(); i++ {
		a := annots.Index(i)
		if a.Key("Subtype").Name() != "Link" {
			continue
		}
		out = append(out, Link{
			Text:   strings.TrimSpace(a.Key("Contents").Text()),
			Target: linkTarget(a),
		})
	}
	return out
}

func linkTarget(annot pdf.Value) string {
	action := annot.Key("A")
	if uri := action.Key("URI"); !uri.IsNull() {
		return uri.RawString()
	}
	if dest := annot.Key("Dest"); !dest.IsNull() {
		if dest.Kind() == pdf.Name {
			return "#" + dest.Name()
		}
		return "#" + dest.Text()
	}
	return ""
}

// inheritedText reads a text key from a field widget or, for kids of a
// terminal field, from its parent.
func inheritedText(v pdf.Value, key string) string {
	for depth := 0; depth < 4 && !v.IsNull(); depth++ {
		if t := strings.TrimSpace(v.Key(key).Text()); t != "" {
			return t
		}
		v = v.Key("Parent")
	}
	return ""
}

// mediaBoxArea walks up the page tree for the inherited MediaBox.
func mediaBoxArea(page pdf.Value) float64 {
	v := page
	for depth := 0; depth < 16 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			w := box.Index(2).Float64() - box.Index(0).Float64()
			h := box.Index(3).Float64() - box.Index(1).Float64()
			return abs(w * h)
		}
		v = v.Key("Parent")
	}
	// US Letter
	return 612 * 792
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
