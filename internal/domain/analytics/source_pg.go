package analytics

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// windowClause restricts r.visit_date to the window; an empty bound is
// passed as '' and disables its side.
const windowClause = `($1 = '' OR r.visit_date >= $1) AND ($2 = '' OR r.visit_date <= $2)`

const (
	visitsSQL = `SELECT r.visit_date, r.record_type, r.department
		FROM medical_records r WHERE ` + windowClause

	diagnosesSQL = `SELECT r.diagnosis, r.department
		FROM medical_records r
		WHERE r.diagnosis IS NOT NULL AND r.diagnosis <> '' AND ` + windowClause

	examinationsSQL = `SELECT e.exam_type, r.department
		FROM examination_results e
		JOIN medical_records r ON e.record_id = r.record_id
		WHERE ` + windowClause

	prescriptionsSQL = `SELECT p.medication_name, r.department, r.diagnosis
		FROM prescriptions p
		JOIN medical_records r ON p.record_id = r.record_id
		WHERE ` + windowClause

	operationsSQL = `SELECT o.operation_name, o.operation_level, r.department, o.blood_loss
		FROM operation_records o
		JOIN medical_records r ON o.record_id = r.record_id
		WHERE ` + windowClause
)

// PGSource reads analysis rows from PostgreSQL with one join per analysis.
type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

func queryRows[T any](ctx context.Context, pool *pgxpool.Pool, sql string, w Window, scan func(pgx.Rows, *T) error) ([]T, error) {
	rows, err := pool.Query(ctx, sql, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var v T
		if err := scan(rows, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PGSource) Visits(ctx context.Context, w Window) ([]VisitRow, error) {
	return queryRows(ctx, s.pool, visitsSQL, w, func(rows pgx.Rows, v *VisitRow) error {
		return rows.Scan(&v.VisitDate, &v.RecordType, &v.Department)
	})
}

func (s *PGSource) Diagnoses(ctx context.Context, w Window) ([]DiagnosisRow, error) {
	return queryRows(ctx, s.pool, diagnosesSQL, w, func(rows pgx.Rows, v *DiagnosisRow) error {
		return rows.Scan(&v.Diagnosis, &v.Department)
	})
}

func (s *PGSource) Examinations(ctx context.Context, w Window) ([]ExamRow, error) {
	return queryRows(ctx, s.pool, examinationsSQL, w, func(rows pgx.Rows, v *ExamRow) error {
		return rows.Scan(&v.ExamType, &v.Department)
	})
}

func (s *PGSource) Prescriptions(ctx context.Context, w Window) ([]PrescriptionRow, error) {
	return queryRows(ctx, s.pool, prescriptionsSQL, w, func(rows pgx.Rows, v *PrescriptionRow) error {
		return rows.Scan(&v.Medication, &v.Department, &v.Diagnosis)
	})
}

func (s *PGSource) Operations(ctx context.Context, w Window) ([]OperationRow, error) {
	return queryRows(ctx, s.pool, operationsSQL, w, func(rows pgx.Rows, v *OperationRow) error {
		return rows.Scan(&v.Name, &v.Level, &v.Department, &v.BloodLoss)
	})
}

var _ Source = (*PGSource)(nil)
