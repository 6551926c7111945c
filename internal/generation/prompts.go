package generation

import (
	"fmt"
	"strings"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/remediation"
)

const systemPreamble = "You are an accessibility expert remediating PDF documents for WCAG 2.1 conformance."

// prompt is the template pair for one issue type. JSON prompts expect a JSON
// object back and the raw object becomes the remediation content.
type prompt struct {
	System    string
	User      string
	JSON      bool
	MaxTokens int
	// MaxRunes caps plain-text answers; 0 means no cap.
	MaxRunes int
}

var prompts = map[models.IssueType]prompt{
	models.IssueMissingAltText: {
		System: systemPreamble + ` Generate concise, descriptive alternative text for an image.

Rules:
- Keep alt text under 125 characters
- Describe the essential information conveyed by the image
- Don't start with "Image of" or "Picture of"
- Reply with the alt text only`,
		User: `Image on page {{page}}
Caption: {{caption}}

Context from surrounding text:
{{surrounding_text}}

Generate appropriate alternative text for this image based on the context.`,
		MaxTokens: 150,
		MaxRunes:  125,
	},
	models.IssueTableHeaders: {
		System: systemPreamble + ` Analyze the table and suggest accessible header cells.

Return a JSON object with:
{
  "headers": ["header1", "header2", ...],
  "caption": "Brief table caption",
  "summary": "Detailed table summary"
}`,
		User: `Table on page {{page}}:

{{table}}`,
		JSON:      true,
		MaxTokens: 300,
	},
	models.IssueHeadingStructure: {
		System: systemPreamble + ` Suggest a heading hierarchy for the page.

Return a JSON object with this structure:
{"headings": [{"level": 1, "text": "Main heading"}, {"level": 2, "text": "Subheading"}]}

Rules:
- Only one level 1 heading per document
- Don't skip heading levels
- Keep the original heading text unless it is not descriptive`,
		User: `Current headings on page {{page}}:

{{headings}}

Problem: {{description}}`,
		JSON:      true,
		MaxTokens: 500,
	},
	models.IssueLinkText: {
		System: systemPreamble + ` Rewrite link text so it describes the link destination out of context.
Reply with the new link text only, at most 100 characters.`,
		User: `Link text: {{link_text}}
Target: {{link_target}}
Sentence: {{sentence}}`,
		MaxTokens: 60,
		MaxRunes:  100,
	},
	models.IssueFormLabels: {
		System: systemPreamble + ` Write a short visible label for a form field.
Reply with the label only, at most 80 characters.`,
		User: `Field name: {{field_name}}
Page {{page}} text:
{{surrounding_text}}`,
		MaxTokens: 40,
		MaxRunes:  80,
	},
	models.IssueMissingLanguage: {
		System: systemPreamble + ` Identify the primary natural language of the document.
Reply with a single BCP 47 language tag such as en-US or de, nothing else.`,
		User: `Title: {{document_title}}

Sample:
{{text_sample}}`,
		MaxTokens: 10,
	},
	models.IssueMissingTitle: {
		System: systemPreamble + ` Propose a descriptive document title.
Reply with the title only, at most 120 characters.`,
		User: `First page headings:
{{headings}}

Sample:
{{text_sample}}`,
		MaxTokens: 60,
		MaxRunes:  120,
	},
}

// fallbackPrompt serves issue types without a dedicated template.
var fallbackPrompt = prompt{
	System: systemPreamble + ` Provide specific, actionable remediation steps for the issue.`,
	User: `WCAG Criteria: {{wcag}}
Description: {{description}}
Page {{page}} text:
{{surrounding_text}}

Provide a concise remediation:`,
	MaxTokens: 300,
}

func promptFor(t models.IssueType) prompt {
	if p, ok := prompts[t]; ok {
		return p
	}
	return fallbackPrompt
}

// variables flattens a request into template values. Every template variable
// is always present so rendering never fails on an absent optional field.
func variables(req remediation.Request) map[string]string {
	c := req.Context
	page := "document"
	if c.Page > 0 {
		page = fmt.Sprintf("%d", c.Page)
	}
	return map[string]string{
		"page":             page,
		"wcag":             orNone(req.WCAG),
		"description":      orNone(c.Description),
		"caption":          orNone(c.ImageCaption),
		"surrounding_text": orNone(c.SurroundingText),
		"table":            formatTable(c.Table),
		"headings":         formatHeadings(c.Headings),
		"link_text":        orNone(c.LinkText),
		"link_target":      orNone(c.LinkTarget),
		"sentence":         orNone(c.Sentence),
		"field_name":       orNone(c.FieldName),
		"document_title":   orNone(c.DocumentTitle),
		"text_sample":      orNone(c.TextSample),
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

const maxTableRows = 5

func formatTable(rows [][]string) string {
	if len(rows) == 0 {
		return "(none)"
	}
	if len(rows) > maxTableRows {
		rows = rows[:maxTableRows]
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = strings.Join(r, " | ")
	}
	return strings.Join(lines, "\n")
}

func formatHeadings(hs []models.HeadingDescriptor) string {
	if len(hs) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, h := range hs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "H%d: %s", h.Level, h.Text)
	}
	return b.String()
}
