package analytics

import (
	"context"

	"github.com/ehr/medrecord/internal/domain/record"
)

// Rows read from the record store. Child rows carry the department and
// diagnosis of their parent record. Rows whose parent visit date falls
// outside the window are not returned.
type (
	VisitRow struct {
		VisitDate  string
		RecordType string
		Department string
	}
	DiagnosisRow struct {
		Diagnosis  string
		Department string
	}
	ExamRow struct {
		ExamType   string
		Department string
	}
	PrescriptionRow struct {
		Medication string
		Department string
		Diagnosis  string
	}
	OperationRow struct {
		Name       string
		Level      string
		Department string
		BloodLoss  *int
	}
)

// Source supplies the rows the analyses aggregate. Reads are not isolated
// from concurrent writes.
type Source interface {
	Visits(ctx context.Context, w Window) ([]VisitRow, error)
	Diagnoses(ctx context.Context, w Window) ([]DiagnosisRow, error)
	Examinations(ctx context.Context, w Window) ([]ExamRow, error)
	Prescriptions(ctx context.Context, w Window) ([]PrescriptionRow, error)
	Operations(ctx context.Context, w Window) ([]OperationRow, error)
}

// Snapshotter reads whole collections. record.LevelRepository implements it.
type Snapshotter interface {
	AllRecords(ctx context.Context) ([]*record.Record, error)
	AllExaminations(ctx context.Context) ([]*record.Examination, error)
	AllPrescriptions(ctx context.Context) ([]*record.Prescription, error)
	AllOperations(ctx context.Context) ([]*record.Operation, error)
}

// LevelSource joins children to their records in memory.
type LevelSource struct {
	snap Snapshotter
}

func NewLevelSource(snap Snapshotter) *LevelSource {
	return &LevelSource{snap: snap}
}

func (s *LevelSource) records(ctx context.Context, w Window) ([]*record.Record, map[string]*record.Record, error) {
	all, err := s.snap.AllRecords(ctx)
	if err != nil {
		return nil, nil, err
	}
	var in []*record.Record
	byID := make(map[string]*record.Record, len(all))
	for _, r := range all {
		if w.Contains(r.VisitDate) {
			in = append(in, r)
			byID[r.RecordID] = r
		}
	}
	return in, byID, nil
}

func (s *LevelSource) Visits(ctx context.Context, w Window) ([]VisitRow, error) {
	recs, _, err := s.records(ctx, w)
	if err != nil {
		return nil, err
	}
	rows := make([]VisitRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, VisitRow{VisitDate: r.VisitDate, RecordType: r.RecordType, Department: r.Department})
	}
	return rows, nil
}

func (s *LevelSource) Diagnoses(ctx context.Context, w Window) ([]DiagnosisRow, error) {
	recs, _, err := s.records(ctx, w)
	if err != nil {
		return nil, err
	}
	rows := make([]DiagnosisRow, 0, len(recs))
	for _, r := range recs {
		if r.Diagnosis != "" {
			rows = append(rows, DiagnosisRow{Diagnosis: r.Diagnosis, Department: r.Department})
		}
	}
	return rows, nil
}

func (s *LevelSource) Examinations(ctx context.Context, w Window) ([]ExamRow, error) {
	_, byID, err := s.records(ctx, w)
	if err != nil {
		return nil, err
	}
	exams, err := s.snap.AllExaminations(ctx)
	if err != nil {
		return nil, err
	}
	var rows []ExamRow
	for _, e := range exams {
		if r, ok := byID[e.RecordID]; ok {
			rows = append(rows, ExamRow{ExamType: e.ExamType, Department: r.Department})
		}
	}
	return rows, nil
}

func (s *LevelSource) Prescriptions(ctx context.Context, w Window) ([]PrescriptionRow, error) {
	_, byID, err := s.records(ctx, w)
	if err != nil {
		return nil, err
	}
	items, err := s.snap.AllPrescriptions(ctx)
	if err != nil {
		return nil, err
	}
	var rows []PrescriptionRow
	for _, p := range items {
		if r, ok := byID[p.RecordID]; ok {
			rows = append(rows, PrescriptionRow{Medication: p.MedicationName, Department: r.Department, Diagnosis: r.Diagnosis})
		}
	}
	return rows, nil
}

func (s *LevelSource) Operations(ctx context.Context, w Window) ([]OperationRow, error) {
	_, byID, err := s.records(ctx, w)
	if err != nil {
		return nil, err
	}
	items, err := s.snap.AllOperations(ctx)
	if err != nil {
		return nil, err
	}
	var rows []OperationRow
	for _, o := range items {
		if r, ok := byID[o.RecordID]; ok {
			rows = append(rows, OperationRow{Name: o.OperationName, Level: o.OperationLevel, Department: r.Department, BloodLoss: o.BloodLoss})
		}
	}
	return rows, nil
}

var _ Source = (*LevelSource)(nil)
