package remediation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

func pageIssue(typ models.IssueType, page, idx int) models.Issue {
	return models.Issue{
		ID:           uuid.New(),
		DocumentID:   uuid.New(),
		Type:         typ,
		PageNumber:   ptr(page),
		WCAGCriteria: typ.Info().WCAG,
		Description:  "detected",
		Location:     models.Location{Page: ptr(page), ElementIndex: idx},
	}
}

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 800)
	content := &models.DocumentContent{
		Title: ptr("Annual report"),
		Pages: []models.PageContent{
			{
				Number:   1,
				Text:     "Our results are in. For the numbers click here. Thanks.",
				Headings: []models.HeadingDescriptor{{Level: 2, Text: "Intro"}},
				Tables:   [][][]string{{{"", ""}, {"1", "2"}}},
				Links:    []models.LinkDescriptor{{Text: "click here", Target: "https://example.com/n"}, {Text: "more", Target: ""}},
				FormFields: []models.FormField{
					{Name: "email"},
				},
			},
			{
				Number: 2,
				Text:   long,
				Images: []models.ImageDescriptor{{Caption: ptr("Figure 2")}, {}},
			},
			{Number: 3},
		},
	}

	t.Run("alt text carries caption and bounded page text", func(t *testing.T) {
		t.Parallel()
		req, err := BuildRequest(pageIssue(models.IssueMissingAltText, 2, 0), content)
		require.NoError(t, err)
		assert.Equal(t, "Figure 2", req.Context.ImageCaption)
		assert.Equal(t, 500, utf8.RuneCountInString(req.Context.SurroundingText))
		assert.Equal(t, 2, req.Context.Page)
		assert.Equal(t, "1.1.1", req.WCAG)
	})

	t.Run("alt text without caption or text", func(t *testing.T) {
		t.Parallel()
		c := &models.DocumentContent{Pages: []models.PageContent{{Number: 1, Images: []models.ImageDescriptor{{}}}}}
		_, err := BuildRequest(pageIssue(models.IssueMissingAltText, 1, 0), c)
		assert.Equal(t, KindContextUnavailable, KindOf(err))
	})

	t.Run("table grid", func(t *testing.T) {
		t.Parallel()
		req, err := BuildRequest(pageIssue(models.IssueTableHeaders, 1, 0), content)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"", ""}, {"1", "2"}}, req.Context.Table)
	})

	t.Run("table index out of range", func(t *testing.T) {
		t.Parallel()
		_, err := BuildRequest(pageIssue(models.IssueTableHeaders, 1, 3), content)
		assert.Equal(t, KindContextUnavailable, KindOf(err))
	})

	t.Run("headings", func(t *testing.T) {
		t.Parallel()
		req, err := BuildRequest(pageIssue(models.IssueHeadingStructure, 1, 0), content)
		require.NoError(t, err)
		assert.Equal(t, content.Pages[0].Headings, req.Context.Headings)
	})

	t.Run("link sentence", func(t *testing.T) {
		t.Parallel()
		req, err := BuildRequest(pageIssue(models.IssueLinkText, 1, 0), content)
		require.NoError(t, err)
		assert.Equal(t, "For the numbers click here.", req.Context.Sentence)
		assert.Equal(t, "https://example.com/n", req.Context.LinkTarget)
	})

	t.Run("link with neither sentence nor target", func(t *testing.T) {
		t.Parallel()
		c := &models.DocumentContent{Pages: []models.PageContent{{Number: 1, Links: []models.LinkDescriptor{{Text: "here"}}}}}
		_, err := BuildRequest(pageIssue(models.IssueLinkText, 1, 0), c)
		assert.Equal(t, KindContextUnavailable, KindOf(err))
	})

	t.Run("form field", func(t *testing.T) {
		t.Parallel()
		req, err := BuildRequest(pageIssue(models.IssueFormLabels, 1, 0), content)
		require.NoError(t, err)
		assert.Equal(t, "email", req.Context.FieldName)
	})

	t.Run("language uses title and sample", func(t *testing.T) {
		t.Parallel()
		is := models.Issue{ID: uuid.New(), Type: models.IssueMissingLanguage}
		req, err := BuildRequest(is, content)
		require.NoError(t, err)
		assert.Equal(t, "Annual report", req.Context.DocumentTitle)
		assert.True(t, strings.HasPrefix(req.Context.TextSample, "Our results are in."))
		assert.LessOrEqual(t, utf8.RuneCountInString(req.Context.TextSample), 500)
	})

	t.Run("title on empty document", func(t *testing.T) {
		t.Parallel()
		is := models.Issue{ID: uuid.New(), Type: models.IssueMissingTitle}
		_, err := BuildRequest(is, &models.DocumentContent{Pages: []models.PageContent{{Number: 1}}})
		assert.Equal(t, KindContextUnavailable, KindOf(err))
	})

	t.Run("missing text is never remediable", func(t *testing.T) {
		t.Parallel()
		_, err := BuildRequest(pageIssue(models.IssueMissingText, 3, 0), content)
		assert.Equal(t, KindContextUnavailable, KindOf(err))
	})

	t.Run("page outside content", func(t *testing.T) {
		t.Parallel()
		_, err := BuildRequest(pageIssue(models.IssueMissingAltText, 9, 0), content)
		assert.Equal(t, KindContextUnavailable, KindOf(err))
	})

	t.Run("nil content", func(t *testing.T) {
		t.Parallel()
		_, err := BuildRequest(pageIssue(models.IssueTableHeaders, 1, 0), nil)
		assert.Equal(t, KindContextUnavailable, KindOf(err))
	})

	t.Run("unknown type gets generic context", func(t *testing.T) {
		t.Parallel()
		req, err := BuildRequest(pageIssue(models.IssueType("color_contrast"), 1, 0), content)
		require.NoError(t, err)
		assert.Equal(t, "detected", req.Context.Description)
		assert.NotEmpty(t, req.Context.SurroundingText)
	})
}

func TestSentenceAround(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Read more about it!", sentenceAround("Intro. Read more about it! Bye.", "read more"))
	assert.Equal(t, "", sentenceAround("nothing here", "click"))
	assert.Equal(t, "only line", sentenceAround("only line", "only"))
}
