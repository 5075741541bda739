package record

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medrecord/internal/platform/db"
	"github.com/ehr/medrecord/internal/platform/sqlq"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGRepository stores records in PostgreSQL. See migrations/ for the schema.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *PGRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.RunInTx(ctx, r.pool, fn)
}

func (r *PGRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// mapPGError turns a primary key violation into errDuplicateID.
func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.HasSuffix(pgErr.ConstraintName, "_pkey") {
		return errDuplicateID
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var items []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// =========== Records ===========

const recordCols = `record_id, patient_id, record_type, visit_date, department, doctor,
	chief_complaint, present_illness, past_history, allergic_history, physical_examination,
	diagnosis, treatment_plan, record_status, created_at, updated_at, created_by, updated_by`

func scanRecord(row pgx.Row) (*Record, error) {
	var m Record
	err := row.Scan(&m.RecordID, &m.PatientID, &m.RecordType, &m.VisitDate, &m.Department, &m.Doctor,
		&m.ChiefComplaint, &m.PresentIllness, &m.PastHistory, &m.AllergicHistory, &m.PhysicalExamination,
		&m.Diagnosis, &m.TreatmentPlan, &m.RecordStatus, &m.CreatedAt, &m.UpdatedAt, &m.CreatedBy, &m.UpdatedBy)
	return &m, err
}

func (r *PGRepository) InsertRecord(ctx context.Context, m *Record) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_records (`+recordCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		m.RecordID, m.PatientID, m.RecordType, m.VisitDate, m.Department, m.Doctor,
		m.ChiefComplaint, m.PresentIllness, m.PastHistory, m.AllergicHistory, m.PhysicalExamination,
		m.Diagnosis, m.TreatmentPlan, m.RecordStatus, m.CreatedAt, m.UpdatedAt, m.CreatedBy, m.UpdatedBy)
	return mapPGError(err)
}

func (r *PGRepository) GetRecord(ctx context.Context, id string) (*Record, error) {
	m, err := scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM medical_records WHERE record_id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (r *PGRepository) LockRecord(ctx context.Context, id string) (*Record, error) {
	m, err := scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM medical_records WHERE record_id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (r *PGRepository) UpdateRecord(ctx context.Context, m *Record) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_records SET patient_id=$2, record_type=$3, visit_date=$4, department=$5, doctor=$6,
			chief_complaint=$7, present_illness=$8, past_history=$9, allergic_history=$10,
			physical_examination=$11, diagnosis=$12, treatment_plan=$13, record_status=$14,
			updated_at=$15, updated_by=$16
		WHERE record_id = $1`,
		m.RecordID, m.PatientID, m.RecordType, m.VisitDate, m.Department, m.Doctor,
		m.ChiefComplaint, m.PresentIllness, m.PastHistory, m.AllergicHistory,
		m.PhysicalExamination, m.Diagnosis, m.TreatmentPlan, m.RecordStatus,
		m.UpdatedAt, m.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var recordFilterColumns = sqlq.Columns{
	"department":      "department",
	"visit_date_from": "visit_date",
	"visit_date_to":   "visit_date",
	"diagnosis":       "diagnosis",
}

var recordSortColumns = sqlq.Columns{
	string(SortCreatedAt):  "created_at",
	string(SortUpdatedAt):  "updated_at",
	string(SortVisitDate):  "visit_date",
	string(SortRecordID):   "record_id",
	string(SortPatientID):  "patient_id",
	string(SortDepartment): "department",
}

func (r *PGRepository) SearchRecords(ctx context.Context, q SearchQuery) ([]*Record, int, error) {
	qb := sqlq.New("medical_records", recordCols)
	if q.Department != "" {
		qb.Where(recordFilterColumns, "department", sqlq.OpEq, q.Department)
	}
	if q.VisitDateFrom != "" {
		qb.Where(recordFilterColumns, "visit_date_from", sqlq.OpGTE, q.VisitDateFrom)
	}
	if q.VisitDateTo != "" {
		qb.Where(recordFilterColumns, "visit_date_to", sqlq.OpLTE, q.VisitDateTo)
	}
	if q.Diagnosis != "" {
		qb.Where(recordFilterColumns, "diagnosis", sqlq.OpContains, q.Diagnosis)
	}
	qb.Sort(recordSortColumns, string(q.SortBy), q.Descending, "created_at DESC, record_id ASC", "record_id")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if q.Offset < 0 || q.Offset >= total {
		return nil, total, nil
	}
	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanRecord)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// =========== Versions ===========

const versionCols = `version_id, record_id, version, content, changed_fields, changed_at, changed_by`

func scanVersion(row pgx.Row) (*Version, error) {
	var v Version
	err := row.Scan(&v.VersionID, &v.RecordID, &v.Version, &v.Content, &v.ChangedFields, &v.ChangedAt, &v.ChangedBy)
	return &v, err
}

func (r *PGRepository) InsertVersion(ctx context.Context, v *Version) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO record_versions (`+versionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		v.VersionID, v.RecordID, v.Version, []byte(v.Content), v.ChangedFields, v.ChangedAt, v.ChangedBy)
	return mapPGError(err)
}

func (r *PGRepository) LatestVersion(ctx context.Context, recordID string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM record_versions WHERE record_id = $1`, recordID).Scan(&n)
	return n, err
}

func (r *PGRepository) ListVersions(ctx context.Context, recordID string) ([]*Version, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+versionCols+` FROM record_versions WHERE record_id = $1 ORDER BY version`, recordID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanVersion)
}

func (r *PGRepository) GetVersion(ctx context.Context, recordID string, version int) (*Version, error) {
	v, err := scanVersion(r.conn(ctx).QueryRow(ctx,
		`SELECT `+versionCols+` FROM record_versions WHERE record_id = $1 AND version = $2`, recordID, version))
	if err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

// =========== Examinations ===========

const examinationCols = `exam_id, record_id, exam_type, exam_date, exam_department, exam_doctor,
	exam_result, exam_conclusion, notes, created_at, created_by`

func scanExamination(row pgx.Row) (*Examination, error) {
	var e Examination
	err := row.Scan(&e.ExamID, &e.RecordID, &e.ExamType, &e.ExamDate, &e.ExamDepartment, &e.ExamDoctor,
		&e.ExamResult, &e.ExamConclusion, &e.Notes, &e.CreatedAt, &e.CreatedBy)
	return &e, err
}

func (r *PGRepository) InsertExamination(ctx context.Context, e *Examination) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO examination_results (`+examinationCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ExamID, e.RecordID, e.ExamType, e.ExamDate, e.ExamDepartment, e.ExamDoctor,
		e.ExamResult, e.ExamConclusion, e.Notes, e.CreatedAt, e.CreatedBy)
	return mapPGError(err)
}

func (r *PGRepository) ListExaminations(ctx context.Context, recordID string) ([]*Examination, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+examinationCols+` FROM examination_results WHERE record_id = $1 ORDER BY created_at, exam_id`, recordID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanExamination)
}

// =========== Prescriptions ===========

const prescriptionCols = `prescription_id, record_id, prescription_type, medication_name, specification,
	dosage, frequency, duration, usage, quantity, unit, notes, status, prescribed_at, prescribed_by`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.PrescriptionID, &p.RecordID, &p.PrescriptionType, &p.MedicationName, &p.Specification,
		&p.Dosage, &p.Frequency, &p.Duration, &p.Usage, &p.Quantity, &p.Unit, &p.Notes, &p.Status,
		&p.PrescribedAt, &p.PrescribedBy)
	return &p, err
}

func (r *PGRepository) InsertPrescription(ctx context.Context, p *Prescription) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescriptions (`+prescriptionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.PrescriptionID, p.RecordID, p.PrescriptionType, p.MedicationName, p.Specification,
		p.Dosage, p.Frequency, p.Duration, p.Usage, p.Quantity, p.Unit, p.Notes, p.Status,
		p.PrescribedAt, p.PrescribedBy)
	return mapPGError(err)
}

func (r *PGRepository) ListPrescriptions(ctx context.Context, recordID string) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE record_id = $1 ORDER BY prescribed_at, prescription_id`, recordID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPrescription)
}

// =========== Operations ===========

const operationCols = `operation_id, record_id, operation_name, operation_date, preoperative_diagnosis,
	postoperative_diagnosis, operation_level, surgeon, assistant, anesthesiologist, anesthesia_method,
	operation_description, blood_loss, notes, created_at, created_by`

func scanOperation(row pgx.Row) (*Operation, error) {
	var o Operation
	err := row.Scan(&o.OperationID, &o.RecordID, &o.OperationName, &o.OperationDate, &o.PreoperativeDiagnosis,
		&o.PostoperativeDiagnosis, &o.OperationLevel, &o.Surgeon, &o.Assistant, &o.Anesthesiologist,
		&o.AnesthesiaMethod, &o.OperationDescription, &o.BloodLoss, &o.Notes, &o.CreatedAt, &o.CreatedBy)
	return &o, err
}

func (r *PGRepository) InsertOperation(ctx context.Context, o *Operation) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO operation_records (`+operationCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		o.OperationID, o.RecordID, o.OperationName, o.OperationDate, o.PreoperativeDiagnosis,
		o.PostoperativeDiagnosis, o.OperationLevel, o.Surgeon, o.Assistant, o.Anesthesiologist,
		o.AnesthesiaMethod, o.OperationDescription, o.BloodLoss, o.Notes, o.CreatedAt, o.CreatedBy)
	return mapPGError(err)
}

func (r *PGRepository) ListOperations(ctx context.Context, recordID string) ([]*Operation, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+operationCols+` FROM operation_records WHERE record_id = $1 ORDER BY created_at, operation_id`, recordID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanOperation)
}

// =========== Attachments ===========

const attachmentCols = `attachment_id, record_id, file_name, file_type, file_path, file_size, uploaded_at, uploaded_by`

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.AttachmentID, &a.RecordID, &a.FileName, &a.FileType, &a.FilePath, &a.FileSize,
		&a.UploadedAt, &a.UploadedBy)
	return &a, err
}

func (r *PGRepository) InsertAttachment(ctx context.Context, a *Attachment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO record_attachments (`+attachmentCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.AttachmentID, a.RecordID, a.FileName, a.FileType, a.FilePath, a.FileSize, a.UploadedAt, a.UploadedBy)
	return mapPGError(err)
}

func (r *PGRepository) ListAttachments(ctx context.Context, recordID string) ([]*Attachment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+attachmentCols+` FROM record_attachments WHERE record_id = $1 ORDER BY uploaded_at, attachment_id`, recordID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAttachment)
}

var _ Repository = (*PGRepository)(nil)
