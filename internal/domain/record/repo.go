package record

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record version conflict")
	ErrPersistence     = errors.New("persistence failure")
)

// errDuplicateID is returned by repositories when a primary key is already
// taken. The store retries with a fresh identifier.
var errDuplicateID = errors.New("duplicate identifier")

// Repository is the storage contract for records, versions and children.
// Reads of a missing record return ErrNotFound.
type Repository interface {
	// InTx runs fn in one transaction. Repository calls made with the ctx
	// passed to fn join that transaction.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	InsertRecord(ctx context.Context, r *Record) error
	GetRecord(ctx context.Context, id string) (*Record, error)
	// LockRecord reads a record and holds it against concurrent writers
	// until the surrounding transaction ends.
	LockRecord(ctx context.Context, id string) (*Record, error)
	UpdateRecord(ctx context.Context, r *Record) error
	SearchRecords(ctx context.Context, q SearchQuery) ([]*Record, int, error)

	InsertVersion(ctx context.Context, v *Version) error
	LatestVersion(ctx context.Context, recordID string) (int, error)
	ListVersions(ctx context.Context, recordID string) ([]*Version, error)
	GetVersion(ctx context.Context, recordID string, version int) (*Version, error)

	InsertExamination(ctx context.Context, e *Examination) error
	ListExaminations(ctx context.Context, recordID string) ([]*Examination, error)
	InsertPrescription(ctx context.Context, p *Prescription) error
	ListPrescriptions(ctx context.Context, recordID string) ([]*Prescription, error)
	InsertOperation(ctx context.Context, o *Operation) error
	ListOperations(ctx context.Context, recordID string) ([]*Operation, error)
	InsertAttachment(ctx context.Context, a *Attachment) error
	ListAttachments(ctx context.Context, recordID string) ([]*Attachment, error)

	Ping(ctx context.Context) error
}

// SortField names a sortable record column.
type SortField string

const (
	SortCreatedAt  SortField = "created_at"
	SortUpdatedAt  SortField = "updated_at"
	SortVisitDate  SortField = "visit_date"
	SortRecordID   SortField = "record_id"
	SortPatientID  SortField = "patient_id"
	SortDepartment SortField = "department"
)

// SortFields lists the accepted sort keys.
var SortFields = []SortField{SortCreatedAt, SortUpdatedAt, SortVisitDate, SortRecordID, SortPatientID, SortDepartment}

func (f SortField) Valid() bool {
	for _, s := range SortFields {
		if f == s {
			return true
		}
	}
	return false
}

// Filter narrows a search. Empty fields are not applied.
type Filter struct {
	Department    string `json:"department,omitempty"`
	VisitDateFrom string `json:"visit_date_from,omitempty"`
	VisitDateTo   string `json:"visit_date_to,omitempty"`
	// Diagnosis is matched as a case-sensitive substring.
	Diagnosis string `json:"diagnosis,omitempty"`
}

// SearchQuery is a filtered, sorted window over records. Ties on SortBy are
// broken by record_id ascending so paging is deterministic.
type SearchQuery struct {
	Filter
	SortBy     SortField
	Descending bool
	Limit      int
	Offset     int
}
