package placement

import (
	"context"
	"io"
	"log"
	"time"
)

// =============================================================================
// DOMAIN EVENTS
// =============================================================================

type EventType string

const (
	EventJobDetailsCreated   EventType = "job_details.created"
	EventPlacementChanged    EventType = "job_details.status_changed"
	EventJobDetailsDeleted   EventType = "job_details.deleted"
	EventPipelineReopened    EventType = "job_details.reopened"
	EventFeesChanged         EventType = "job_details.fees_changed"
	EventJobLostIncremented  EventType = "consultant.job_lost_incremented"
	EventStaffAssigned       EventType = "consultant.staff_assigned"
	EventConsultantDeleted   EventType = "consultant.deleted"
	EventDocumentsReviewed   EventType = "consultant.documents_status_changed"
	EventResumeChanged       EventType = "consultant.resume_changed"
	EventAgreementCreated    EventType = "agreement.created"
	EventPaymentRecorded     EventType = "agreement.payment_recorded"
	EventAgreementCompleted  EventType = "agreement.completed"
	EventAgreementTerminated EventType = "agreement.terminated"
	EventAgreementDeleted    EventType = "agreement.deleted"
	EventInstallmentOverdue  EventType = "agreement.installment_overdue"
)

// Event is published after the write it describes has committed.
type Event struct {
	Type         EventType         `json:"type"`
	ConsultantID ConsultantID      `json:"consultant_id"`
	ActorID      StaffID           `json:"actor_id,omitempty"`
	At           time.Time         `json:"at"`
	Data         map[string]string `json:"data,omitempty"`
}

// Publisher delivers events to downstream consumers. See the events package
// for Kafka and RabbitMQ implementations.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// publishAll sends events in order. A failed publish is logged and never
// undoes the committed write.
func publishAll(ctx context.Context, p Publisher, component string, events ...Event) {
	if p == nil {
		return
	}
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			log.Printf("[%s] publish %s for %s failed: %v", component, e.Type, e.ConsultantID, err)
		}
	}
}

// =============================================================================
// FILE STORE (external collaborator)
// =============================================================================

// FileStore keeps uploaded proof blobs. The engine only ever sees the
// opaque reference returned by Store.
type FileStore interface {
	Store(ctx context.Context, r io.Reader, suggestedName string) (string, error)
	Retrieve(ctx context.Context, ref string) (io.ReadCloser, error)
}
