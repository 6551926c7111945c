// Package detector runs the structural accessibility checks over extracted
// PDF content and turns their findings into typed issues.
package detector

import (
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

type Detector struct {
	checks []Check
	now    func() time.Time
	newID  func() uuid.UUID
}

type Option func(*Detector)

// WithChecks replaces the default check set.
func WithChecks(checks ...Check) Option {
	return func(d *Detector) { d.checks = checks }
}

func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(d *Detector) { d.newID = gen }
}

func New(opts ...Option) *Detector {
	d := &Detector{
		checks: DefaultChecks(),
		now:    time.Now,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs every check against content. Apart from ids and timestamps the
// output depends only on content.
func (d *Detector) Detect(documentID uuid.UUID, content *models.DocumentContent) []models.Issue {
	if content == nil {
		content = &models.DocumentContent{}
	}

	createdAt := d.now().UTC()
	var issues []models.Issue
	for _, c := range d.checks {
		for _, f := range c.Run(content) {
			issues = append(issues, d.toIssue(documentID, f, createdAt))
		}
	}
	return issues
}

func (d *Detector) toIssue(documentID uuid.UUID, f Finding, createdAt time.Time) models.Issue {
	info := f.Type.Info()

	var page *int
	if f.Page > 0 {
		p := f.Page
		page = &p
	}

	return models.Issue{
		ID:           d.newID(),
		DocumentID:   documentID,
		Type:         f.Type,
		Severity:     info.Severity,
		PageNumber:   page,
		Description:  f.Description,
		WCAGCriteria: info.WCAG,
		Location:     f.Location,
		CreatedAt:    createdAt,
	}
}
