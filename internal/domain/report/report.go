// Package report implements spec.md §4.9's report request manager:
// accept a request, validate it against the caller's authorization
// scope, and track its lifecycle through to a generated file. The
// worker that actually produces the file is an external collaborator —
// this package owns only the request row and its status machine.
package report

import "time"

// Status codes (spec.md §4.9).
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Known report codes. Group-scoped reports require group-admin or
// superadmin; personal reports require the requesting user to be the
// report's own subject.
const (
	CodeGroupActivitySummary    = "group_activity_summary"
	CodeGroupLedgerStatement    = "group_ledger_statement"
	CodePersonalTaskHistory     = "personal_task_history"
	CodePersonalLedgerStatement = "personal_ledger_statement"
)

// Scope distinguishes a group-scoped report (authorization checked
// against GroupID) from a personal one (checked against SubjectUserID).
type Scope string

const (
	ScopeGroup    Scope = "group"
	ScopePersonal Scope = "personal"
)

// Request mirrors spec.md §3's ReportRequest.
type Request struct {
	ID            string
	ReportCode    string
	Scope         Scope
	GroupID       *string
	SubjectUserID *string
	RequestedByID string
	Params        string // opaque JSON, shape is per-code
	Status        string
	FileRef       *string // FileRef.ID from the external storage collaborator
	ErrorMessage  *string
	GeneratedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// requiredParams lists the parameter keys each report code needs —
// the closed validation table spec.md §4.9 calls for ("validates
// required parameters per code").
var requiredParams = map[string][]string{
	CodeGroupActivitySummary:    {"from_date", "to_date"},
	CodeGroupLedgerStatement:    {"from_date", "to_date"},
	CodePersonalTaskHistory:     {"from_date", "to_date"},
	CodePersonalLedgerStatement: {"from_date", "to_date"},
}

// scopeForCode fixes each known report code to its scope — the same
// closed-table approach SPEC_FULL.md §4.7a uses for badge conditions.
var scopeForCode = map[string]Scope{
	CodeGroupActivitySummary:    ScopeGroup,
	CodeGroupLedgerStatement:    ScopeGroup,
	CodePersonalTaskHistory:     ScopePersonal,
	CodePersonalLedgerStatement: ScopePersonal,
}
