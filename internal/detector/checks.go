package detector

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

const (
	// minPageTextRunes is the trimmed text length below which a page is
	// considered to have no usable text layer.
	minPageTextRunes = 10
	// largeImageCoverage is the page fraction an image must cover to explain
	// a page without text.
	largeImageCoverage = 0.25
)

// genericLinkPhrases are matched against normalized link text.
var genericLinkPhrases = map[string]struct{}{
	"click here": {},
	"click":      {},
	"here":       {},
	"read more":  {},
	"more":       {},
	"learn more": {},
	"more info":  {},
	"details":    {},
	"link":       {},
	"this link":  {},
}

// Finding is what a Check reports; the Detector turns findings into Issues.
type Finding struct {
	Type        models.IssueType
	Page        int // 0 for document-level findings
	Description string
	Location    models.Location
}

// Check inspects extracted content and reports the findings it is
// responsible for. Checks must not keep state between calls.
type Check struct {
	Type models.IssueType
	Run  func(content *models.DocumentContent) []Finding
}

// DefaultChecks is the full check set in reporting order.
func DefaultChecks() []Check {
	return []Check{
		{models.IssueMissingText, CheckMissingText},
		{models.IssueTableHeaders, CheckTableHeaders},
		{models.IssueMissingAltText, CheckImageAltText},
		{models.IssueHeadingStructure, CheckHeadingStructure},
		{models.IssueMissingLanguage, CheckLanguage},
		{models.IssueMissingTitle, CheckTitle},
		{models.IssueFormLabels, CheckFormLabels},
		{models.IssueLinkText, CheckLinkText},
	}
}

func CheckMissingText(content *models.DocumentContent) []Finding {
	var out []Finding
	for _, p := range content.Pages {
		if utf8.RuneCountInString(strings.TrimSpace(p.Text)) >= minPageTextRunes {
			continue
		}
		if hasLargeImage(p.Images) {
			continue
		}
		out = append(out, Finding{
			Type:        models.IssueMissingText,
			Page:        p.Number,
			Description: "Page has little or no extractable text. It may be a scan without a text layer.",
			Location:    pageLocation(p.Number, "page", 0),
		})
	}
	return out
}

func hasLargeImage(images []models.ImageDescriptor) bool {
	for _, img := range images {
		if img.Coverage >= largeImageCoverage {
			return true
		}
	}
	return false
}

func CheckTableHeaders(content *models.DocumentContent) []Finding {
	var out []Finding
	for _, p := range content.Pages {
		for idx, table := range p.Tables {
			if len(table) == 0 || rowHasContent(table[0]) {
				continue
			}
			out = append(out, Finding{
				Type:        models.IssueTableHeaders,
				Page:        p.Number,
				Description: fmt.Sprintf("Table %d has no header row. Screen readers cannot announce column meaning.", idx+1),
				Location:    pageLocation(p.Number, "table", idx),
			})
		}
	}
	return out
}

func rowHasContent(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}
	return false
}

func CheckImageAltText(content *models.DocumentContent) []Finding {
	var out []Finding
	for _, p := range content.Pages {
		for idx, img := range p.Images {
			if img.HasAltText {
				continue
			}
			out = append(out, Finding{
				Type:        models.IssueMissingAltText,
				Page:        p.Number,
				Description: fmt.Sprintf("Image %d has no alternative text.", idx+1),
				Location:    pageLocation(p.Number, "image", idx),
			})
		}
	}
	return out
}

// CheckHeadingStructure reports at most one finding per page: either the page
// has headings but no H1, or a heading skips a level relative to the previous one.
func CheckHeadingStructure(content *models.DocumentContent) []Finding {
	var out []Finding
	for _, p := range content.Pages {
		if len(p.Headings) == 0 {
			continue
		}
		if desc, idx, bad := headingProblem(p.Headings); bad {
			out = append(out, Finding{
				Type:        models.IssueHeadingStructure,
				Page:        p.Number,
				Description: desc,
				Location:    pageLocation(p.Number, "heading", idx),
			})
		}
	}
	return out
}

func headingProblem(headings []models.HeadingDescriptor) (string, int, bool) {
	hasH1 := false
	for _, h := range headings {
		if h.Level == 1 {
			hasH1 = true
			break
		}
	}
	if !hasH1 {
		return "Page has headings but no level 1 heading.", 0, true
	}

	prev := 0
	for i, h := range headings {
		if prev == 0 && h.Level > 1 {
			return fmt.Sprintf("Page starts at H%d before any H1.", h.Level), i, true
		}
		if h.Level > prev+1 {
			return fmt.Sprintf("Heading level jumps from H%d to H%d.", prev, h.Level), i, true
		}
		prev = h.Level
	}
	return "", 0, false
}

func CheckLanguage(content *models.DocumentContent) []Finding {
	if content.Language != nil && strings.TrimSpace(*content.Language) != "" {
		return nil
	}
	return []Finding{{
		Type:        models.IssueMissingLanguage,
		Description: "Document does not declare a language. Screen readers cannot pick a pronunciation.",
		Location:    models.Location{Element: "document"},
	}}
}

func CheckTitle(content *models.DocumentContent) []Finding {
	if content.Title != nil && strings.TrimSpace(*content.Title) != "" {
		return nil
	}
	return []Finding{{
		Type:        models.IssueMissingTitle,
		Description: "Document is missing a title in its metadata.",
		Location:    models.Location{Element: "document"},
	}}
}

func CheckFormLabels(content *models.DocumentContent) []Finding {
	var out []Finding
	for _, p := range content.Pages {
		for idx, f := range p.FormFields {
			if f.HasLabel {
				continue
			}
			desc := fmt.Sprintf("Form field %d has no label.", idx+1)
			if f.Name != "" {
				desc = fmt.Sprintf("Form field %q has no label.", f.Name)
			}
			out = append(out, Finding{
				Type:        models.IssueFormLabels,
				Page:        p.Number,
				Description: desc,
				Location:    pageLocation(p.Number, "field", idx),
			})
		}
	}
	return out
}

func CheckLinkText(content *models.DocumentContent) []Finding {
	var out []Finding
	for _, p := range content.Pages {
		for idx, l := range p.Links {
			if !IsGenericLinkText(l.Text) {
				continue
			}
			out = append(out, Finding{
				Type:        models.IssueLinkText,
				Page:        p.Number,
				Description: fmt.Sprintf("Link text %q does not describe its destination.", strings.TrimSpace(l.Text)),
				Location:    pageLocation(p.Number, "link", idx),
			})
		}
	}
	return out
}

// IsGenericLinkText reports whether text is one of the denylisted phrases,
// ignoring case, extra whitespace and trailing punctuation.
func IsGenericLinkText(text string) bool {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	norm = strings.TrimRight(norm, ".!:;,>»→ ")
	_, ok := genericLinkPhrases[norm]
	return ok
}

func pageLocation(page int, element string, idx int) models.Location {
	p := page
	return models.Location{Page: &p, Element: element, ElementIndex: idx}
}
