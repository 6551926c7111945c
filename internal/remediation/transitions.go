package remediation

import (
	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

// Event is a command applied to a remediation record.
type Event string

const (
	EventGenerate  Event = "generate"
	EventApprove   Event = "approve"
	EventReject    Event = "reject"
	EventImplement Event = "implement"
	EventComplete  Event = "complete"
	EventFail      Event = "fail"
)

type rule struct {
	to    models.RemediationStatus
	guard func(*models.RemediationRecord) bool
}

func approvedBefore(r *models.RemediationRecord) bool { return r != nil && r.ApprovedAt != nil }
func neverApproved(r *models.RemediationRecord) bool  { return !approvedBefore(r) }

// transitions is the complete set of legal moves. A missing record is pending.
var transitions = map[models.RemediationStatus]map[Event]rule{
	models.RemediationPending: {
		EventGenerate: {to: models.RemediationGenerated},
	},
	models.RemediationGenerated: {
		EventApprove: {to: models.RemediationApproved},
		EventReject:  {to: models.RemediationRejected},
		EventFail:    {to: models.RemediationFailed},
	},
	models.RemediationApproved: {
		EventApprove:   {to: models.RemediationApproved},
		EventImplement: {to: models.RemediationImplementationPending},
	},
	models.RemediationRejected: {
		EventGenerate: {to: models.RemediationGenerated},
	},
	models.RemediationImplementationPending: {
		EventComplete: {to: models.RemediationImplemented},
		EventFail:     {to: models.RemediationFailed},
	},
	models.RemediationFailed: {
		EventImplement: {to: models.RemediationImplementationPending, guard: approvedBefore},
		EventGenerate:  {to: models.RemediationGenerated, guard: neverApproved},
	},
	models.RemediationImplemented: {},
}

// targets is the state each event asks for, used to report the requested
// state when no rule matches.
var targets = map[Event]models.RemediationStatus{
	EventGenerate:  models.RemediationGenerated,
	EventApprove:   models.RemediationApproved,
	EventReject:    models.RemediationRejected,
	EventImplement: models.RemediationImplementationPending,
	EventComplete:  models.RemediationImplemented,
	EventFail:      models.RemediationFailed,
}

func statusOf(rec *models.RemediationRecord) models.RemediationStatus {
	if rec == nil || rec.Status == "" {
		return models.RemediationPending
	}
	return rec.Status
}

// Next returns the state rec moves to on ev, or an *InvalidTransitionError.
func Next(rec *models.RemediationRecord, ev Event) (models.RemediationStatus, error) {
	from := statusOf(rec)
	r, ok := transitions[from][ev]
	if !ok || (r.guard != nil && !r.guard(rec)) {
		it := &InvalidTransitionError{From: from, To: targets[ev]}
		if rec != nil {
			it.IssueID = rec.IssueID
		}
		return "", it
	}
	return r.to, nil
}
