package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/medrecord/internal/platform/metrics"
)

// maxIDAttempts bounds retries when a generated identifier is already taken,
// e.g. by another process sharing the database.
const maxIDAttempts = 5

// auditFields are stamped by the store on creation and reported as changed in
// version 1 alongside the supplied fields.
var auditFields = []string{"record_id", "created_at", "updated_at", "created_by", "updated_by", "record_status"}

// Store persists records, their version history and their children. It does
// not validate input; callers run the validation engine first.
type Store struct {
	repo   Repository
	ids    *IDGenerator
	now    Clock
	logger zerolog.Logger
}

func NewStore(repo Repository, now Clock, logger zerolog.Logger) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		repo:   repo,
		ids:    NewIDGenerator(now),
		now:    now,
		logger: logger.With().Str("component", "record_store").Logger(),
	}
}

// stamp returns the current time at the precision every backend preserves.
func (s *Store) stamp() time.Time {
	return s.now().Truncate(time.Microsecond)
}

// fail logs err once and returns it wrapped. Errors that are not one of the
// store's own sentinels are reported as ErrPersistence.
func (s *Store) fail(op, key, id string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionConflict):
		s.logger.Warn().Err(err).Str("op", op).Str(key, id).Msg("record store operation rejected")
		return fmt.Errorf("%s %s: %w", op, id, err)
	case errors.Is(err, ErrPersistence):
		s.logger.Error().Err(err).Str("op", op).Str(key, id).Msg("record store operation failed")
		return fmt.Errorf("%s %s: %w", op, id, err)
	default:
		s.logger.Error().Err(err).Str("op", op).Str(key, id).Msg("record store operation failed")
		return fmt.Errorf("%s %s: %w: %w", op, id, ErrPersistence, err)
	}
}

func nullColumnsError(missing []string) error {
	return fmt.Errorf("%w: null value in column %s", ErrPersistence, strings.Join(missing, ", "))
}

// CreateRecord stores a new draft record and its version 1 in one
// transaction and returns the new record id.
func (s *Store) CreateRecord(ctx context.Context, fields RecordFields, author string) (id string, err error) {
	defer metrics.Observe("record_store", "create_record", time.Now(), &err)

	if missing := fields.missingColumns(); len(missing) > 0 {
		return "", s.fail("create_record", "patient_id", deref(fields.PatientID), nullColumnsError(missing))
	}

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id = s.ids.Next(PrefixRecord)
		err = s.repo.InTx(ctx, func(ctx context.Context) error {
			return s.insertWithFirstVersion(ctx, id, fields, author)
		})
		if !errors.Is(err, errDuplicateID) {
			break
		}
		s.logger.Warn().Str("record_id", id).Int("attempt", attempt).Msg("record id taken, retrying")
	}
	if err != nil {
		return "", s.fail("create_record", "record_id", id, err)
	}

	s.logger.Info().Str("record_id", id).Str("author", author).Msg("record created")
	return id, nil
}

func (s *Store) insertWithFirstVersion(ctx context.Context, id string, fields RecordFields, author string) error {
	now := s.stamp()
	rec := &Record{
		RecordID:  id,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: author,
		UpdatedBy: author,
	}
	fields.applyTo(rec)
	rec.RecordStatus = string(StatusDraft)

	if err := s.repo.InsertRecord(ctx, rec); err != nil {
		return err
	}

	content, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.repo.InsertVersion(ctx, &Version{
		VersionID:     uuid.NewString(),
		RecordID:      id,
		Version:       1,
		Content:       content,
		ChangedFields: firstVersionFields(fields),
		ChangedAt:     now,
		ChangedBy:     author,
	})
}

func firstVersionFields(fields RecordFields) []string {
	out := make([]string, 0, len(auditFields)+13)
	for _, name := range fields.Names() {
		if name != "record_status" {
			out = append(out, name)
		}
	}
	return append(out, auditFields...)
}

// GetRecord returns the record with all of its children and, when
// includeVersions is set, its versions in ascending order.
func (s *Store) GetRecord(ctx context.Context, id string, includeVersions bool) (view *View, err error) {
	defer metrics.Observe("record_store", "get_record", time.Now(), &err)

	view, err = s.loadView(ctx, id, includeVersions)
	if err != nil {
		return nil, s.fail("get_record", "record_id", id, err)
	}
	return view, nil
}

func (s *Store) loadView(ctx context.Context, id string, includeVersions bool) (*View, error) {
	rec, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &View{Record: *rec}

	if view.Examinations, err = s.repo.ListExaminations(ctx, id); err != nil {
		return nil, err
	}
	if view.Prescriptions, err = s.repo.ListPrescriptions(ctx, id); err != nil {
		return nil, err
	}
	if view.Operations, err = s.repo.ListOperations(ctx, id); err != nil {
		return nil, err
	}
	if view.Attachments, err = s.repo.ListAttachments(ctx, id); err != nil {
		return nil, err
	}
	if includeVersions {
		if view.Versions, err = s.repo.ListVersions(ctx, id); err != nil {
			return nil, err
		}
	}
	view.normalize()
	return view, nil
}

// normalize replaces nil child collections with empty ones so that they
// encode as [] rather than null.
func (v *View) normalize() {
	if v.Examinations == nil {
		v.Examinations = []*Examination{}
	}
	if v.Prescriptions == nil {
		v.Prescriptions = []*Prescription{}
	}
	if v.Operations == nil {
		v.Operations = []*Operation{}
	}
	if v.Attachments == nil {
		v.Attachments = []*Attachment{}
	}
}

// UpdateRecord merges patch over the stored record and appends the next
// version. The record row stays locked until the version is written, so
// concurrent updates of one record serialize. When expectedVersion is
// non-zero it must equal the latest stored version, otherwise
// ErrVersionConflict is returned and nothing is written.
func (s *Store) UpdateRecord(ctx context.Context, id string, patch RecordFields, author string, expectedVersion int) (v *Version, err error) {
	defer metrics.Observe("record_store", "update_record", time.Now(), &err)

	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.LockRecord(ctx, id)
		if err != nil {
			return err
		}
		latest, err := s.repo.LatestVersion(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && expectedVersion != latest {
			return fmt.Errorf("%w: expected version %d, latest is %d", ErrVersionConflict, expectedVersion, latest)
		}

		now := s.stamp()
		patch.applyTo(cur)
		cur.UpdatedAt = now
		cur.UpdatedBy = author
		if err := s.repo.UpdateRecord(ctx, cur); err != nil {
			return err
		}

		content, err := json.Marshal(cur)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		v = &Version{
			VersionID:     uuid.NewString(),
			RecordID:      id,
			Version:       latest + 1,
			Content:       content,
			ChangedFields: append([]string{}, patch.Names()...),
			ChangedAt:     now,
			ChangedBy:     author,
		}
		return s.repo.InsertVersion(ctx, v)
	})
	if err != nil {
		return nil, s.fail("update_record", "record_id", id, err)
	}

	s.logger.Info().Str("record_id", id).Int("version", v.Version).Strs("changed_fields", v.ChangedFields).Msg("record updated")
	return v, nil
}

// ListVersions returns every version of a record in ascending order.
func (s *Store) ListVersions(ctx context.Context, id string) (versions []*Version, err error) {
	defer metrics.Observe("record_store", "list_versions", time.Now(), &err)

	if _, err = s.repo.GetRecord(ctx, id); err != nil {
		return nil, s.fail("list_versions", "record_id", id, err)
	}
	versions, err = s.repo.ListVersions(ctx, id)
	if err != nil {
		return nil, s.fail("list_versions", "record_id", id, err)
	}
	if versions == nil {
		versions = []*Version{}
	}
	return versions, nil
}

func (s *Store) GetVersion(ctx context.Context, id string, version int) (v *Version, err error) {
	defer metrics.Observe("record_store", "get_version", time.Now(), &err)

	v, err = s.repo.GetVersion(ctx, id, version)
	if err != nil {
		return nil, s.fail("get_version", "record_id", id, err)
	}
	return v, nil
}

// SearchRecords returns one window of matching records and the total number
// of matches.
func (s *Store) SearchRecords(ctx context.Context, q SearchQuery) (items []*Record, total int, err error) {
	defer metrics.Observe("record_store", "search_records", time.Now(), &err)

	items, total, err = s.repo.SearchRecords(ctx, q)
	if err != nil {
		return nil, 0, s.fail("search_records", "department", q.Department, err)
	}
	return items, total, nil
}

// Children are write-once and do not create a version of their parent.

func (s *Store) AddExamination(ctx context.Context, recordID string, f ExaminationFields, author string) (*Examination, error) {
	return addChild(ctx, s, "add_examination", recordID, PrefixExamination, f.missingColumns(),
		func(id string) *Examination { return f.build(id, recordID, author, s.stamp) },
		s.repo.InsertExamination)
}

func (s *Store) AddPrescription(ctx context.Context, recordID string, f PrescriptionFields, author string) (*Prescription, error) {
	return addChild(ctx, s, "add_prescription", recordID, PrefixPrescription, f.missingColumns(),
		func(id string) *Prescription { return f.build(id, recordID, author, s.stamp) },
		s.repo.InsertPrescription)
}

func (s *Store) AddOperation(ctx context.Context, recordID string, f OperationFields, author string) (*Operation, error) {
	return addChild(ctx, s, "add_operation", recordID, PrefixOperation, f.missingColumns(),
		func(id string) *Operation { return f.build(id, recordID, author, s.stamp) },
		s.repo.InsertOperation)
}

func (s *Store) AddAttachment(ctx context.Context, recordID string, f AttachmentFields, author string) (*Attachment, error) {
	return addChild(ctx, s, "add_attachment", recordID, PrefixAttachment, f.missingColumns(),
		func(id string) *Attachment { return f.build(id, recordID, author, s.stamp) },
		s.repo.InsertAttachment)
}

func addChild[T any](ctx context.Context, s *Store, op, recordID, prefix string, missing []string,
	build func(id string) *T, insert func(context.Context, *T) error) (child *T, err error) {
	defer metrics.Observe("record_store", op, time.Now(), &err)

	if len(missing) > 0 {
		return nil, s.fail(op, "record_id", recordID, nullColumnsError(missing))
	}
	if _, err = s.repo.GetRecord(ctx, recordID); err != nil {
		return nil, s.fail(op, "record_id", recordID, err)
	}

	var id string
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id = s.ids.Next(prefix)
		child = build(id)
		err = insert(ctx, child)
		if !errors.Is(err, errDuplicateID) {
			break
		}
		s.logger.Warn().Str("id", id).Int("attempt", attempt).Msg("child id taken, retrying")
	}
	if err != nil {
		return nil, s.fail(op, "record_id", recordID, err)
	}

	s.logger.Info().Str("op", op).Str("record_id", recordID).Str("id", id).Msg("child added")
	return child, nil
}
