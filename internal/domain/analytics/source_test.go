package analytics

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/medrecord/internal/domain/record"
)

func newLevelFixture(t *testing.T) (*record.Store, *LevelSource) {
	t.Helper()
	repo, err := record.NewMemLevelRepository()
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	var mu sync.Mutex
	clock := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return record.NewStore(repo, now, zerolog.Nop()), NewLevelSource(repo)
}

func seedRecord(t *testing.T, store *record.Store, visitDate, department, diagnosis string) string {
	t.Helper()
	id, err := store.CreateRecord(context.Background(), record.RecordFields{
		PatientID:  record.Ptr("P20230001"),
		RecordType: record.Ptr("门诊"),
		VisitDate:  record.Ptr(visitDate),
		Department: record.Ptr(department),
		Doctor:     record.Ptr("张医生"),
		Diagnosis:  record.Ptr(diagnosis),
	}, "doctor-1")
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	return id
}

func TestLevelSource_JoinsAndWindows(t *testing.T) {
	store, src := newLevelFixture(t)
	ctx := context.Background()

	march := seedRecord(t, store, "2024-03-10", "外科", "阑尾炎")
	april := seedRecord(t, store, "2024-04-10", "内科", "感冒")
	seedRecord(t, store, "2024-03-11", "内科", "")

	if _, err := store.AddOperation(ctx, march, record.OperationFields{
		OperationName:          record.Ptr("阑尾切除术"),
		OperationDate:          record.Ptr("2024-03-10"),
		PreoperativeDiagnosis:  record.Ptr("阑尾炎"),
		PostoperativeDiagnosis: record.Ptr("阑尾炎"),
		OperationLevel:         record.Ptr("二级"),
		Surgeon:                record.Ptr("王医生"),
		BloodLoss:              record.Ptr(120),
	}, "doctor-1"); err != nil {
		t.Fatalf("AddOperation: %v", err)
	}
	if _, err := store.AddPrescription(ctx, april, record.PrescriptionFields{
		PrescriptionType: record.Ptr("西药"),
		MedicationName:   record.Ptr("布洛芬"),
		Specification:    record.Ptr("0.3g*20"),
		Dosage:           record.Ptr("0.3g"),
		Frequency:        record.Ptr("每日两次"),
		Duration:         record.Ptr("3天"),
		Usage:            record.Ptr("口服"),
		Quantity:         record.Ptr(1),
		Unit:             record.Ptr("盒"),
	}, "doctor-1"); err != nil {
		t.Fatalf("AddPrescription: %v", err)
	}
	if _, err := store.AddExamination(ctx, march, record.ExaminationFields{
		ExamType:       record.Ptr("血常规"),
		ExamDate:       record.Ptr("2024-03-10"),
		ExamDepartment: record.Ptr("检验科"),
		ExamDoctor:     record.Ptr("李医生"),
		ExamResult:     record.Ptr("白细胞升高"),
	}, "doctor-1"); err != nil {
		t.Fatalf("AddExamination: %v", err)
	}

	marchOnly := Window{Start: "2024-03-01", End: "2024-03-31"}

	visits, err := src.Visits(ctx, marchOnly)
	if err != nil {
		t.Fatalf("Visits: %v", err)
	}
	if len(visits) != 2 {
		t.Errorf("visits = %v, want the two March records", visits)
	}

	diags, err := src.Diagnoses(ctx, Window{})
	if err != nil {
		t.Fatalf("Diagnoses: %v", err)
	}
	got := []string{}
	for _, d := range diags {
		got = append(got, d.Diagnosis)
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "感冒" || got[1] != "阑尾炎" {
		t.Errorf("diagnoses = %v, empty diagnosis should be skipped", got)
	}

	ops, err := src.Operations(ctx, marchOnly)
	if err != nil {
		t.Fatalf("Operations: %v", err)
	}
	if len(ops) != 1 || ops[0].Department != "外科" || ops[0].BloodLoss == nil || *ops[0].BloodLoss != 120 {
		t.Errorf("operations = %+v", ops)
	}

	rx, err := src.Prescriptions(ctx, marchOnly)
	if err != nil {
		t.Fatalf("Prescriptions: %v", err)
	}
	if len(rx) != 0 {
		t.Errorf("April prescription leaked into March window: %+v", rx)
	}
	rx, _ = src.Prescriptions(ctx, Window{})
	if len(rx) != 1 || rx[0].Diagnosis != "感冒" || rx[0].Department != "内科" {
		t.Errorf("prescriptions = %+v", rx)
	}

	exams, err := src.Examinations(ctx, marchOnly)
	if err != nil {
		t.Fatalf("Examinations: %v", err)
	}
	if len(exams) != 1 || exams[0].ExamType != "血常规" || exams[0].Department != "外科" {
		t.Errorf("examinations = %+v", exams)
	}
}

func TestLevelSource_EngineEndToEnd(t *testing.T) {
	store, src := newLevelFixture(t)
	seedRecord(t, store, "2024-03-10", "内科", "感冒")
	seedRecord(t, store, "2024-03-10", "内科", "感冒")
	seedRecord(t, store, "2024-03-12", "外科", "骨折")

	e := NewEngine(src, NopRenderer{}, t.TempDir(), zerolog.Nop())
	res, err := e.DiagnosisDistribution(context.Background(), Window{})
	if err != nil {
		t.Fatalf("DiagnosisDistribution: %v", err)
	}
	d := res.Data.(DiagnosisDistribution)
	if d.Total != 3 || d.Diagnoses[0] != (Count{"感冒", 2}) {
		t.Errorf("unexpected distribution: %+v", d)
	}
}
