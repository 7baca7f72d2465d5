/*
review.go - Document verification and resume builder workflow

PURPOSE:
  Tracks the two consultant reviews that run beside the placement
  pipeline: the document verification round trip and the resume build.

DOCUMENT VERIFICATION:
  pending            ── ApproveDocuments ────────────▶ verified
  pending            ── RejectDocuments ─────────────▶ rejected
  verified, rejected ── RequestDocumentVerification ─▶ pending

  A request needs both a coordinator and a team lead assigned.

RESUME:
  A resume builder claims an unclaimed consultant, which also gives the
  builder read access through the assignment-scoped capabilities. Only the
  claiming builder may release it. A superAdmin accepts or rejects the
  resume once a builder is attached.
*/
package placement

import (
	"context"
	"fmt"
)

// =============================================================================
// DOCUMENT VERIFICATION
// =============================================================================

// RequestDocumentVerification puts the consultant's documents back in the
// review queue.
func (l *Lifecycle) RequestDocumentVerification(ctx context.Context, actor Actor, id ConsultantID) (*Consultant, error) {
	return l.review(ctx, actor, id, ActionRequestDocumentReview, EventDocumentsReviewed, func(c *Consultant) error {
		if c.DocumentVerification == DocumentsPending {
			return &StateError{Entity: "document verification", Current: string(DocumentsPending), Required: "verified or rejected"}
		}
		if c.Assignment.CoordinatorID == nil || c.Assignment.TeamLeadID == nil {
			return fmt.Errorf("coordinator and team lead must be assigned: %w", ErrPreconditionFailed)
		}
		c.DocumentVerification = DocumentsPending
		return nil
	})
}

func (l *Lifecycle) ApproveDocuments(ctx context.Context, actor Actor, id ConsultantID) (*Consultant, error) {
	return l.decideDocuments(ctx, actor, id, DocumentsVerified)
}

func (l *Lifecycle) RejectDocuments(ctx context.Context, actor Actor, id ConsultantID) (*Consultant, error) {
	return l.decideDocuments(ctx, actor, id, DocumentsRejected)
}

func (l *Lifecycle) decideDocuments(ctx context.Context, actor Actor, id ConsultantID, to DocumentVerificationStatus) (*Consultant, error) {
	return l.review(ctx, actor, id, ActionReviewDocuments, EventDocumentsReviewed, func(c *Consultant) error {
		if c.DocumentVerification != DocumentsPending {
			return &StateError{Entity: "document verification", Current: string(c.DocumentVerification), Required: string(DocumentsPending)}
		}
		c.DocumentVerification = to
		return nil
	})
}

// =============================================================================
// RESUME
// =============================================================================

// ClaimResume attaches the calling resume builder to the consultant and
// restarts the resume.
func (l *Lifecycle) ClaimResume(ctx context.Context, actor Actor, id ConsultantID) (*Consultant, error) {
	return l.review(ctx, actor, id, ActionClaimResume, EventResumeChanged, func(c *Consultant) error {
		if c.Assignment.ResumeBuilderID != nil {
			return ErrResumeClaimed
		}
		builder := actor.ID
		c.Assignment.ResumeBuilderID = &builder
		c.ResumeStatus = ResumeNotBuilt
		return nil
	})
}

// ReleaseResume detaches the calling builder. Capability scoping already
// restricts it to the builder who claimed the consultant.
func (l *Lifecycle) ReleaseResume(ctx context.Context, actor Actor, id ConsultantID) (*Consultant, error) {
	return l.review(ctx, actor, id, ActionReleaseResume, EventResumeChanged, func(c *Consultant) error {
		c.Assignment.ResumeBuilderID = nil
		c.ResumeStatus = ResumeNotBuilt
		return nil
	})
}

// UpdateResumeStatus records the review outcome of a built resume.
func (l *Lifecycle) UpdateResumeStatus(ctx context.Context, actor Actor, id ConsultantID, status ResumeStatus) (*Consultant, error) {
	if status != ResumeAccepted && status != ResumeRejected {
		return nil, invalidField("resumeStatus", fmt.Sprintf("must be %q or %q", ResumeAccepted, ResumeRejected))
	}
	return l.review(ctx, actor, id, ActionReviewResume, EventResumeChanged, func(c *Consultant) error {
		if c.Assignment.ResumeBuilderID == nil {
			return &StateError{Entity: "resume", Current: "unassigned", Required: "a resume builder"}
		}
		c.ResumeStatus = status
		return nil
	})
}

// review loads, authorizes, changes and persists one consultant, then
// publishes the resulting document and resume state.
func (l *Lifecycle) review(ctx context.Context, actor Actor, id ConsultantID, action Action, evt EventType, change func(*Consultant) error) (*Consultant, error) {
	var out *Consultant
	err := l.Store.WithTx(ctx, func(s Store) error {
		c, err := loadConsultant(ctx, s, id)
		if err != nil {
			return err
		}
		if err := l.Gate.Authorize(ctx, actor, c, action); err != nil {
			return err
		}
		if err := change(c); err != nil {
			return err
		}
		c.UpdatedAt = l.Now()
		if err := s.UpdateConsultant(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, l.Events, "Lifecycle", l.event(evt, id, actor, map[string]string{
		"action":                string(action),
		"document_verification": string(out.DocumentVerification),
		"resume_status":         string(out.ResumeStatus),
	}))
	return out, nil
}
