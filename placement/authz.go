/*
authz.go - Authorization Gate

PURPOSE:
  Decides whether an actor may perform an action on a consultant. Roles are a
  closed set and capabilities are a lookup table, so no operation compares
  role strings itself.

TIERS:
  Elevated (superAdmin, admin)   every action except the resume builder
                                 claim and release, every consultant
  Accounts                       fee and agreement actions, every consultant
  Assignment-scoped (coordinator, teamLead, resumeBuilder)
                                 only consultants where the actor appears in
                                 the matching assignment slot

  Resume review is superAdmin only. Any resume builder may claim an
  unclaimed consultant; only the claiming builder may release it.

USAGE:
  gate := placement.DefaultCapabilities()
  if err := gate.Authorize(ctx, actor, consultant, placement.ActionCreateJobDetails); err != nil {
      return err // wraps ErrUnauthorized
  }
*/
package placement

import (
	"context"
	"fmt"
)

// =============================================================================
// ROLES & ACTORS
// =============================================================================

type Role string

const (
	RoleSuperAdmin    Role = "superAdmin"
	RoleAdmin         Role = "admin"
	RoleAccounts      Role = "Accounts"
	RoleCoordinator   Role = "coordinator"
	RoleTeamLead      Role = "teamLead"
	RoleSupport       Role = "Support"
	RoleResumeBuilder Role = "resumeBuilder"
	RoleCandidate     Role = "Candidate"
)

var knownRoles = map[Role]bool{
	RoleSuperAdmin: true, RoleAdmin: true, RoleAccounts: true, RoleCoordinator: true,
	RoleTeamLead: true, RoleSupport: true, RoleResumeBuilder: true, RoleCandidate: true,
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !knownRoles[r] {
		return "", fmt.Errorf("unknown role %q: %w", s, ErrUnauthorized)
	}
	return r, nil
}

// Actor is the authenticated staff member behind a request.
type Actor struct {
	ID   StaffID
	Name string
	Role Role
}

// SystemActor runs background jobs such as the overdue sweep.
var SystemActor = Actor{ID: "system", Name: "scheduler", Role: RoleSuperAdmin}

// =============================================================================
// ACTIONS & CAPABILITY TABLE
// =============================================================================

type Action string

const (
	ActionRegisterConsultant    Action = "register_consultant"
	ActionViewConsultant        Action = "view_consultant"
	ActionDeleteConsultant      Action = "delete_consultant"
	ActionAssignStaff           Action = "assign_staff"
	ActionRequestDocumentReview Action = "request_document_review"
	ActionReviewDocuments       Action = "review_documents"
	ActionClaimResume           Action = "claim_resume"
	ActionReleaseResume         Action = "release_resume"
	ActionReviewResume          Action = "review_resume"
	ActionUpdateWorkStatus      Action = "update_work_status"
	ActionIncrementJobLost      Action = "increment_job_lost"
	ActionCreateJobDetails      Action = "create_job_details"
	ActionViewJobDetails        Action = "view_job_details"
	ActionUpdatePlacementStatus Action = "update_placement_status"
	ActionReopenAfterJobLost    Action = "reopen_after_job_lost"
	ActionDeleteJobDetails      Action = "delete_job_details"
	ActionWriteFees             Action = "write_fees"
	ActionViewFees              Action = "view_fees"
	ActionResetFees             Action = "reset_fees"
	ActionListPlacements        Action = "list_placements"
	ActionCreateAgreement       Action = "create_agreement"
	ActionViewAgreement         Action = "view_agreement"
	ActionRecordPayment         Action = "record_payment"
	ActionUploadProof           Action = "upload_proof"
	ActionRecordJobLost         Action = "record_job_lost"
	ActionDeleteAgreement       Action = "delete_agreement"
	ActionSweepOverdue          Action = "sweep_overdue"
)

// Scope limits a grant to all consultants or to assigned ones.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeAssigned
)

// Authorizer is the capability check the Lifecycle and Ledger consume.
// consultant may be nil for actions that are not about a single consultant.
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, consultant *Consultant, action Action) error
}

// CapabilityTable maps action → role → scope. A missing entry denies.
type CapabilityTable map[Action]map[Role]Scope

// DefaultCapabilities returns the production role table.
func DefaultCapabilities() CapabilityTable {
	elevated := func(extra map[Role]Scope) map[Role]Scope {
		grants := map[Role]Scope{RoleSuperAdmin: ScopeAll, RoleAdmin: ScopeAll}
		for r, s := range extra {
			grants[r] = s
		}
		return grants
	}
	assignedStaff := map[Role]Scope{RoleCoordinator: ScopeAssigned, RoleTeamLead: ScopeAssigned}
	accounts := map[Role]Scope{RoleAccounts: ScopeAll}

	return CapabilityTable{
		ActionRegisterConsultant: elevated(map[Role]Scope{RoleCandidate: ScopeAll}),
		ActionViewConsultant: elevated(map[Role]Scope{
			RoleAccounts: ScopeAll, RoleCoordinator: ScopeAssigned,
			RoleTeamLead: ScopeAssigned, RoleResumeBuilder: ScopeAssigned,
		}),
		ActionDeleteConsultant:      elevated(nil),
		ActionAssignStaff:           elevated(nil),
		ActionRequestDocumentReview: elevated(assignedStaff),
		ActionReviewDocuments:       elevated(assignedStaff),
		ActionClaimResume:           {RoleResumeBuilder: ScopeAll},
		ActionReleaseResume:         {RoleResumeBuilder: ScopeAssigned},
		ActionReviewResume:          {RoleSuperAdmin: ScopeAll},
		ActionUpdateWorkStatus:      elevated(assignedStaff),
		ActionIncrementJobLost:      elevated(nil),
		ActionCreateJobDetails:      elevated(assignedStaff),
		ActionViewJobDetails: elevated(map[Role]Scope{
			RoleAccounts: ScopeAll, RoleCoordinator: ScopeAssigned,
			RoleTeamLead: ScopeAssigned, RoleResumeBuilder: ScopeAssigned,
		}),
		ActionUpdatePlacementStatus: elevated(assignedStaff),
		ActionReopenAfterJobLost:    elevated(assignedStaff),
		ActionDeleteJobDetails:      elevated(nil),
		ActionWriteFees:             elevated(accounts),
		ActionViewFees:              elevated(accounts),
		ActionResetFees:             elevated(nil),
		ActionListPlacements:        elevated(accounts),
		ActionCreateAgreement:       elevated(accounts),
		ActionViewAgreement:         elevated(accounts),
		ActionRecordPayment:         elevated(accounts),
		ActionUploadProof:           elevated(accounts),
		ActionRecordJobLost:         elevated(accounts),
		ActionDeleteAgreement:       elevated(nil),
		ActionSweepOverdue:          elevated(accounts),
	}
}

// Authorize implements Authorizer.
func (t CapabilityTable) Authorize(_ context.Context, actor Actor, c *Consultant, action Action) error {
	scope, ok := t[action][actor.Role]
	if !ok {
		return &DeniedError{Role: actor.Role, Action: action, Reason: "role lacks capability"}
	}
	if scope == ScopeAssigned && (c == nil || !isAssigned(c.Assignment, actor)) {
		return &DeniedError{Role: actor.Role, Action: action, Reason: "not assigned to this consultant"}
	}
	return nil
}

func isAssigned(a StaffAssignment, actor Actor) bool {
	match := func(ref *StaffID) bool { return ref != nil && *ref == actor.ID }
	switch actor.Role {
	case RoleCoordinator:
		return match(a.CoordinatorID) || match(a.Coordinator2ID)
	case RoleTeamLead:
		return match(a.TeamLeadID)
	case RoleResumeBuilder:
		return match(a.ResumeBuilderID)
	}
	return false
}
