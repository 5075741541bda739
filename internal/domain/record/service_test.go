package record

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/medrecord/internal/domain/validation"
	"github.com/ehr/medrecord/internal/platform/blobstore"
)

func newTestService(t *testing.T) (*Service, *blobstore.InMemoryBlobStore) {
	t.Helper()
	store, _ := newTestStore(t)
	blobs := blobstore.NewInMemoryBlobStore()
	return NewService(store, validation.NewDefaultEngine(), blobs, zerolog.Nop()), blobs
}

func violationCodes(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *validation.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *validation.Error, got %v", err)
	}
	out := make(map[string]string, len(verr.Violations))
	for _, v := range verr.Violations {
		out[v.Field] = v.Code
	}
	return out
}

func TestService_CreateRejectsViolations(t *testing.T) {
	svc, _ := newTestService(t)
	f := validFields()
	f.PatientID = Ptr("P1234567")
	f.RecordType = Ptr("门急诊")

	_, err := svc.CreateRecord(context.Background(), f, "doctor-1")
	codes := violationCodes(t, err)
	if codes["patient_id"] != validation.CodeFormat {
		t.Errorf("expected patient_id format violation, got %v", codes)
	}
	if codes["record_type"] != validation.CodeEnum {
		t.Errorf("expected record_type enum violation, got %v", codes)
	}
}

func TestService_CreateAndUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateRecord(ctx, validFields(), "doctor-1")
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	v, err := svc.UpdateRecord(ctx, id, RecordFields{RecordStatus: Ptr(string(StatusSubmitted))}, "doctor-2", 1)
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if v.Version != 2 {
		t.Errorf("expected version 2, got %d", v.Version)
	}

	_, err = svc.UpdateRecord(ctx, id, RecordFields{RecordStatus: Ptr("作废")}, "doctor-2", 0)
	if codes := violationCodes(t, err); codes["record_status"] != validation.CodeEnum {
		t.Errorf("expected record_status enum violation, got %v", codes)
	}

	view, err := svc.GetRecord(ctx, id, true)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if view.RecordStatus != string(StatusSubmitted) {
		t.Errorf("expected status %s, got %s", StatusSubmitted, view.RecordStatus)
	}
	if len(view.Versions) != 2 {
		t.Errorf("expected the rejected update to leave 2 versions, got %d", len(view.Versions))
	}
}

func TestService_ChildValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id, err := svc.CreateRecord(ctx, validFields(), "doctor-1")
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	_, err = svc.AddPrescription(ctx, id, PrescriptionFields{
		PrescriptionType: Ptr("西药"),
		MedicationName:   Ptr("阿莫西林"),
		Specification:    Ptr("0.25g*24"),
		Dosage:           Ptr("两粒"),
		Frequency:        Ptr("tid"),
		Duration:         Ptr("7天"),
		Usage:            Ptr("口服"),
		Quantity:         Ptr(2),
		Unit:             Ptr("盒"),
	}, "doctor-1")
	if codes := violationCodes(t, err); codes["dosage"] != validation.CodeRegex {
		t.Errorf("expected dosage regex violation, got %v", codes)
	}

	_, err = svc.AddOperation(ctx, id, OperationFields{
		OperationName:          Ptr("阑尾切除术"),
		OperationDate:          Ptr("2024-03-16"),
		PreoperativeDiagnosis:  Ptr("急性阑尾炎"),
		PostoperativeDiagnosis: Ptr("急性阑尾炎"),
		OperationLevel:         Ptr("五级"),
		Surgeon:                Ptr("王医生"),
	}, "doctor-1")
	if codes := violationCodes(t, err); codes["operation_level"] != validation.CodeEnum {
		t.Errorf("expected operation_level enum violation, got %v", codes)
	}

	exam, err := svc.AddExamination(ctx, id, ExaminationFields{
		ExamType:       Ptr("血常规"),
		ExamDate:       Ptr("2024-03-15"),
		ExamDepartment: Ptr("检验科"),
		ExamDoctor:     Ptr("李医生"),
		ExamResult:     Ptr("正常"),
	}, "doctor-1")
	if err != nil {
		t.Fatalf("AddExamination: %v", err)
	}
	if !strings.HasPrefix(exam.ExamID, PrefixExamination) {
		t.Errorf("expected exam id with prefix %s, got %s", PrefixExamination, exam.ExamID)
	}
}

func TestService_UploadAttachment(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()
	id, err := svc.CreateRecord(ctx, validFields(), "doctor-1")
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	att, err := svc.UploadAttachment(ctx, id, Upload{
		FileName:    "ct_scan.png",
		ContentType: "image/png",
		Size:        9,
		Content:     strings.NewReader("png-bytes"),
	}, "doctor-1")
	if err != nil {
		t.Fatalf("UploadAttachment: %v", err)
	}

	rc, meta, err := blobs.Download(ctx, att.FilePath)
	if err != nil {
		t.Fatalf("expected blob under file_path %s: %v", att.FilePath, err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "png-bytes" {
		t.Errorf("unexpected blob content %q", data)
	}
	if meta.RecordID != id || att.FileSize != 9 {
		t.Errorf("unexpected attachment %+v / blob %+v", att, meta)
	}
}

func TestService_UploadAttachmentRejections(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()
	id, err := svc.CreateRecord(ctx, validFields(), "doctor-1")
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	tests := []struct {
		name  string
		up    Upload
		field string
	}{
		{"bad name", Upload{FileName: "a/b.png", ContentType: "image/png", Size: 1}, "file_name"},
		{"bad type", Upload{FileName: "a.exe", ContentType: "application/x-msdownload", Size: 1}, "file_type"},
		{"too large", Upload{FileName: "a.pdf", ContentType: "application/pdf", Size: validation.MaxAttachmentSize + 1}, "file_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.up.Content = bytes.NewReader([]byte("x"))
			_, err := svc.UploadAttachment(ctx, id, tt.up, "doctor-1")
			if codes := violationCodes(t, err); codes[tt.field] == "" {
				t.Errorf("expected violation on %s, got %v", tt.field, codes)
			}
		})
	}

	if items, _ := blobs.ListByRecord(ctx, id); len(items) != 0 {
		t.Errorf("expected no blobs stored for rejected uploads, got %d", len(items))
	}
}

func TestService_UploadAttachmentMissingRecordRemovesBlob(t *testing.T) {
	svc, blobs := newTestService(t)
	ctx := context.Background()

	_, err := svc.UploadAttachment(ctx, "R20990101000000", Upload{
		FileName:    "report.pdf",
		ContentType: "application/pdf",
		Size:        3,
		Content:     strings.NewReader("pdf"),
	}, "doctor-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if items, _ := blobs.ListByRecord(ctx, "R20990101000000"); len(items) != 0 {
		t.Errorf("expected orphaned blob to be deleted, got %d", len(items))
	}
}
