package remediation

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

const maxContextRunes = 500

// Request is what the content-generation service receives for one issue.
type Request struct {
	IssueID    uuid.UUID        `json:"issue_id"`
	DocumentID uuid.UUID        `json:"document_id"`
	IssueType  models.IssueType `json:"issue_type"`
	WCAG       string           `json:"wcag_criteria,omitempty"`
	Context    Context          `json:"context"`
}

// Context is the issue-type-specific payload. Only the fields relevant to the
// issue type are set.
type Context struct {
	Page            int                        `json:"page,omitempty"`
	Description     string                     `json:"description,omitempty"`
	ImageCaption    string                     `json:"image_caption,omitempty"`
	SurroundingText string                     `json:"surrounding_text,omitempty"`
	Table           [][]string                 `json:"table,omitempty"`
	Headings        []models.HeadingDescriptor `json:"headings,omitempty"`
	LinkText        string                     `json:"link_text,omitempty"`
	LinkTarget      string                     `json:"link_target,omitempty"`
	Sentence        string                     `json:"sentence,omitempty"`
	FieldName       string                     `json:"field_name,omitempty"`
	DocumentTitle   string                     `json:"document_title,omitempty"`
	TextSample      string                     `json:"text_sample,omitempty"`
}

// Response is the generation service's answer.
type Response struct {
	Content string `json:"content"`
}

type contextBuilder func(issue models.Issue, content *models.DocumentContent) (Context, error)

var contextBuilders = map[models.IssueType]contextBuilder{
	models.IssueMissingAltText:   altTextContext,
	models.IssueTableHeaders:     tableContext,
	models.IssueHeadingStructure: headingContext,
	models.IssueLinkText:         linkContext,
	models.IssueFormLabels:       formFieldContext,
	models.IssueMissingLanguage:  languageContext,
	models.IssueMissingTitle:     titleContext,
	models.IssueMissingText:      noTextContext,
}

// BuildRequest assembles the minimal payload for issue. It fails with
// ContextUnavailable instead of producing an empty payload.
func BuildRequest(issue models.Issue, content *models.DocumentContent) (Request, error) {
	build, ok := contextBuilders[issue.Type]
	if !ok {
		build = genericContext
	}
	if content == nil {
		return Request{}, contextUnavailable(issue, "no extracted content for document %s", issue.DocumentID)
	}

	c, err := build(issue, content)
	if err != nil {
		return Request{}, err
	}
	c.Page = issue.Page()
	if c.Description == "" {
		c.Description = issue.Description
	}

	return Request{
		IssueID:    issue.ID,
		DocumentID: issue.DocumentID,
		IssueType:  issue.Type,
		WCAG:       issue.WCAGCriteria,
		Context:    c,
	}, nil
}

func issuePage(issue models.Issue, content *models.DocumentContent) (*models.PageContent, error) {
	p, ok := content.Page(issue.Page())
	if !ok {
		return nil, contextUnavailable(issue, "page %d not in extracted content", issue.Page())
	}
	return p, nil
}

func altTextContext(issue models.Issue, content *models.DocumentContent) (Context, error) {
	p, err := issuePage(issue, content)
	if err != nil {
		return Context{}, err
	}
	idx := issue.Location.ElementIndex
	if idx < 0 || idx >= len(p.Images) {
		return Context{}, contextUnavailable(issue, "image %d not found on page %d", idx, p.Number)
	}

	c := Context{SurroundingText: truncate(p.Text, maxContextRunes)}
	if caption := p.Images[idx].Caption; caption != nil {
		c.ImageCaption = strings.TrimSpace(*caption)
	}
	if c.ImageCaption == "" && c.SurroundingText == "" {
		return Context{}, contextUnavailable(issue, "image %d has no caption and page %d has no text", idx, p.Number)
	}
	return c, nil
}

func tableContext(issue models.Issue, content *models.DocumentContent) (Context, error) {
	p, err := issuePage(issue, content)
	if err != nil {
		return Context{}, err
	}
	idx := issue.Location.ElementIndex
	if idx < 0 || idx >= len(p.Tables) || len(p.Tables[idx]) == 0 {
		return Context{}, contextUnavailable(issue, "table grid %d not available on page %d", idx, p.Number)
	}
	return Context{Table: p.Tables[idx]}, nil
}

func headingContext(issue models.Issue, content *models.DocumentContent) (Context, error) {
	p, err := issuePage(issue, content)
	if err != nil {
		return Context{}, err
	}
	if len(p.Headings) == 0 {
		return Context{}, contextUnavailable(issue, "no heading sequence on page %d", p.Number)
	}
	return Context{Headings: p.Headings}, nil
}

func linkContext(issue models.Issue, content *models.DocumentContent) (Context, error) {
	p, err := issuePage(issue, content)
	if err != nil {
		return Context{}, err
	}
	idx := issue.Location.ElementIndex
	if idx < 0 || idx >= len(p.Links) {
		return Context{}, contextUnavailable(issue, "link %d not found on page %d", idx, p.Number)
	}
	l := p.Links[idx]
	c := Context{
		LinkText:   strings.TrimSpace(l.Text),
		LinkTarget: l.Target,
		Sentence:   sentenceAround(p.Text, l.Text),
	}
	if c.Sentence == "" && c.LinkTarget == "" {
		return Context{}, contextUnavailable(issue, "link %d has neither surrounding sentence nor target", idx)
	}
	return c, nil
}

func formFieldContext(issue models.Issue, content *models.DocumentContent) (Context, error) {
	p, err := issuePage(issue, content)
	if err != nil {
		return Context{}, err
	}
	idx := issue.Location.ElementIndex
	if idx < 0 || idx >= len(p.FormFields) {
		return Context{}, contextUnavailable(issue, "form field %d not found on page %d", idx, p.Number)
	}
	c := Context{FieldName: p.FormFields[idx].Name, SurroundingText: truncate(p.Text, maxContextRunes)}
	if c.FieldName == "" && c.SurroundingText == "" {
		return Context{}, contextUnavailable(issue, "form field %d has no name and page %d has no text", idx, p.Number)
	}
	return c, nil
}

func languageContext(issue models.Issue, content *models.DocumentContent) (Context, error) {
	c := Context{TextSample: textSample(content)}
	if content.Title != nil {
		c.DocumentTitle = strings.TrimSpace(*content.Title)
	}
	if c.TextSample == "" && c.DocumentTitle == "" {
		return Context{}, contextUnavailable(issue, "document has no text to infer a language from")
	}
	return c, nil
}

func titleContext(issue models.Issue, content *models.DocumentContent) (Context, error) {
	c := Context{TextSample: textSample(content)}
	if len(content.Pages) > 0 {
		c.Headings = content.Pages[0].Headings
	}
	if c.TextSample == "" && len(c.Headings) == 0 {
		return Context{}, contextUnavailable(issue, "document has no text to derive a title from")
	}
	return c, nil
}

// noTextContext always fails: a page without a text layer needs OCR, which
// the generation service cannot stand in for.
func noTextContext(issue models.Issue, _ *models.DocumentContent) (Context, error) {
	return Context{}, contextUnavailable(issue, "page %d has no text layer to remediate from", issue.Page())
}

func genericContext(issue models.Issue, content *models.DocumentContent) (Context, error) {
	c := Context{Description: issue.Description}
	if p, ok := content.Page(issue.Page()); ok {
		c.SurroundingText = truncate(p.Text, maxContextRunes)
	}
	return c, nil
}

func textSample(content *models.DocumentContent) string {
	var b strings.Builder
	for _, p := range content.Pages {
		t := strings.TrimSpace(p.Text)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t)
		if utf8.RuneCountInString(b.String()) >= maxContextRunes {
			break
		}
	}
	return truncate(b.String(), maxContextRunes)
}

// sentenceAround returns the sentence of text that contains needle, matched
// case-insensitively. It returns "" when needle does not occur.
func sentenceAround(text, needle string) string {
	needle = strings.TrimSpace(needle)
	if needle == "" || text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	at := strings.Index(lower, strings.ToLower(needle))
	if at < 0 {
		return ""
	}

	start := strings.LastIndexAny(text[:at], ".!?\n")
	start++
	end := len(text)
	if rel := strings.IndexAny(text[at+len(needle):], ".!?\n"); rel >= 0 {
		end = at + len(needle) + rel + 1
	}
	return truncate(strings.TrimSpace(text[start:end]), maxContextRunes)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
