package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout:
//
//	record/<record_id>
//	version/<record_id>/<version, zero padded>
//	examination/<record_id>/<exam_id>   (likewise prescription, operation, attachment)
//
// Child identifiers embed their creation second, so key order is creation order.
const (
	keyRecord       = "record/"
	keyVersion      = "version/"
	keyExamination  = "examination/"
	keyPrescription = "prescription/"
	keyOperation    = "operation/"
	keyAttachment   = "attachment/"
)

type levelRW interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Has(key []byte, ro *opt.ReadOptions) (bool, error)
	Put(key, value []byte, wo *opt.WriteOptions) error
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type levelTxKey struct{}

// LevelRepository stores records in an embedded LevelDB database. Writers
// are serialized: a LevelDB transaction blocks every other write until it
// commits or is discarded.
type LevelRepository struct {
	db *leveldb.DB
}

// OpenLevelRepository opens (or creates) the database at path.
func OpenLevelRepository(path string) (*LevelRepository, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelRepository{db: ldb}, nil
}

// NewMemLevelRepository returns a repository backed by in-memory storage.
func NewMemLevelRepository() (*LevelRepository, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open in-memory leveldb: %w", err)
	}
	return &LevelRepository{db: ldb}, nil
}

func (r *LevelRepository) Close() error {
	return r.db.Close()
}

func (r *LevelRepository) rw(ctx context.Context) levelRW {
	if tx, ok := ctx.Value(levelTxKey{}).(*leveldb.Transaction); ok {
		return tx
	}
	return r.db
}

func (r *LevelRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(levelTxKey{}).(*leveldb.Transaction); ok {
		return fn(ctx)
	}
	tx, err := r.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("open transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, levelTxKey{}, tx)); err != nil {
		tx.Discard()
		return err
	}
	if err := tx.Commit(); err != nil {
		tx.Discard()
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *LevelRepository) Ping(ctx context.Context) error {
	_, err := r.db.GetProperty("leveldb.num-files-at-level0")
	return err
}

func getJSON[T any](rw levelRW, key string) (*T, error) {
	data, err := rw.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

func putJSON(rw levelRW, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return rw.Put([]byte(key), data, nil)
}

// insertJSON refuses to overwrite an existing key.
func insertJSON(rw levelRW, key string, v any) error {
	exists, err := rw.Has([]byte(key), nil)
	if err != nil {
		return err
	}
	if exists {
		return errDuplicateID
	}
	return putJSON(rw, key, v)
}

func scanPrefix[T any](rw levelRW, prefix string) ([]*T, error) {
	it := rw.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()

	var items []*T
	for it.Next() {
		var v T
		if err := json.Unmarshal(it.Value(), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		items = append(items, &v)
	}
	return items, it.Error()
}

// =========== Records ===========

func (r *LevelRepository) InsertRecord(ctx context.Context, m *Record) error {
	return insertJSON(r.rw(ctx), keyRecord+m.RecordID, m)
}

func (r *LevelRepository) GetRecord(ctx context.Context, id string) (*Record, error) {
	return getJSON[Record](r.rw(ctx), keyRecord+id)
}

// LockRecord reads through the active transaction, which already excludes
// other writers.
func (r *LevelRepository) LockRecord(ctx context.Context, id string) (*Record, error) {
	return r.GetRecord(ctx, id)
}

func (r *LevelRepository) UpdateRecord(ctx context.Context, m *Record) error {
	rw := r.rw(ctx)
	exists, err := rw.Has([]byte(keyRecord+m.RecordID), nil)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return putJSON(rw, keyRecord+m.RecordID, m)
}

func (r *LevelRepository) SearchRecords(ctx context.Context, q SearchQuery) ([]*Record, int, error) {
	all, err := scanPrefix[Record](r.rw(ctx), keyRecord)
	if err != nil {
		return nil, 0, err
	}

	var matched []*Record
	for _, m := range all {
		if q.Matches(m) {
			matched = append(matched, m)
		}
	}
	SortRecords(matched, q.SortBy, q.Descending)

	total := len(matched)
	if q.Offset < 0 || q.Offset >= total {
		return nil, total, nil
	}
	end := total
	if q.Limit > 0 && q.Limit < total-q.Offset {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], total, nil
}

// Matches reports whether m passes every non-empty filter.
func (f Filter) Matches(m *Record) bool {
	if f.Department != "" && m.Department != f.Department {
		return false
	}
	if f.VisitDateFrom != "" && m.VisitDate < f.VisitDateFrom {
		return false
	}
	if f.VisitDateTo != "" && m.VisitDate > f.VisitDateTo {
		return false
	}
	if f.Diagnosis != "" && !strings.Contains(m.Diagnosis, f.Diagnosis) {
		return false
	}
	return true
}

// SortRecords orders records by field, breaking ties by record_id
// ascending. An unknown field falls back to created_at descending.
func SortRecords(items []*Record, field SortField, desc bool) {
	if !field.Valid() {
		field, desc = SortCreatedAt, true
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		var c int
		switch field {
		case SortCreatedAt:
			c = a.CreatedAt.Compare(b.CreatedAt)
		case SortUpdatedAt:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		case SortVisitDate:
			c = strings.Compare(a.VisitDate, b.VisitDate)
		case SortRecordID:
			c = strings.Compare(a.RecordID, b.RecordID)
		case SortPatientID:
			c = strings.Compare(a.PatientID, b.PatientID)
		case SortDepartment:
			c = strings.Compare(a.Department, b.Department)
		}
		if desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return a.RecordID < b.RecordID
	})
}

// =========== Versions ===========

func versionKey(recordID string, version int) string {
	return fmt.Sprintf("%s%s/%010d", keyVersion, recordID, version)
}

func (r *LevelRepository) InsertVersion(ctx context.Context, v *Version) error {
	return insertJSON(r.rw(ctx), versionKey(v.RecordID, v.Version), v)
}

func (r *LevelRepository) LatestVersion(ctx context.Context, recordID string) (int, error) {
	it := r.rw(ctx).NewIterator(util.BytesPrefix([]byte(keyVersion+recordID+"/")), nil)
	defer it.Release()

	latest := 0
	if it.Last() {
		var v Version
		if err := json.Unmarshal(it.Value(), &v); err != nil {
			return 0, fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		latest = v.Version
	}
	return latest, it.Error()
}

func (r *LevelRepository) ListVersions(ctx context.Context, recordID string) ([]*Version, error) {
	return scanPrefix[Version](r.rw(ctx), keyVersion+recordID+"/")
}

func (r *LevelRepository) GetVersion(ctx context.Context, recordID string, version int) (*Version, error) {
	return getJSON[Version](r.rw(ctx), versionKey(recordID, version))
}

// =========== Children ===========

func childKey(prefix, recordID, id string) string {
	return prefix + recordID + "/" + id
}

func (r *LevelRepository) InsertExamination(ctx context.Context, e *Examination) error {
	return insertJSON(r.rw(ctx), childKey(keyExamination, e.RecordID, e.ExamID), e)
}

func (r *LevelRepository) ListExaminations(ctx context.Context, recordID string) ([]*Examination, error) {
	return scanPrefix[Examination](r.rw(ctx), keyExamination+recordID+"/")
}

func (r *LevelRepository) InsertPrescription(ctx context.Context, p *Prescription) error {
	return insertJSON(r.rw(ctx), childKey(keyPrescription, p.RecordID, p.PrescriptionID), p)
}

func (r *LevelRepository) ListPrescriptions(ctx context.Context, recordID string) ([]*Prescription, error) {
	return scanPrefix[Prescription](r.rw(ctx), keyPrescription+recordID+"/")
}

func (r *LevelRepository) InsertOperation(ctx context.Context, o *Operation) error {
	return insertJSON(r.rw(ctx), childKey(keyOperation, o.RecordID, o.OperationID), o)
}

func (r *LevelRepository) ListOperations(ctx context.Context, recordID string) ([]*Operation, error) {
	return scanPrefix[Operation](r.rw(ctx), keyOperation+recordID+"/")
}

func (r *LevelRepository) InsertAttachment(ctx context.Context, a *Attachment) error {
	return insertJSON(r.rw(ctx), childKey(keyAttachment, a.RecordID, a.AttachmentID), a)
}

func (r *LevelRepository) ListAttachments(ctx context.Context, recordID string) ([]*Attachment, error) {
	return scanPrefix[Attachment](r.rw(ctx), keyAttachment+recordID+"/")
}

// =========== Full scans ===========

// AllRecords and the other All* methods read whole collections for
// aggregation. They are not a consistent snapshot across calls.
func (r *LevelRepository) AllRecords(ctx context.Context) ([]*Record, error) {
	return scanPrefix[Record](r.db, keyRecord)
}

func (r *LevelRepository) AllExaminations(ctx context.Context) ([]*Examination, error) {
	return scanPrefix[Examination](r.db, keyExamination)
}

func (r *LevelRepository) AllPrescriptions(ctx context.Context) ([]*Prescription, error) {
	return scanPrefix[Prescription](r.db, keyPrescription)
}

func (r *LevelRepository) AllOperations(ctx context.Context) ([]*Operation, error) {
	return scanPrefix[Operation](r.db, keyOperation)
}

var _ Repository = (*LevelRepository)(nil)
