package record

import (
	"encoding/json"
	"time"

	"github.com/ehr/medrecord/internal/domain/validation"
)

type RecordType string

const (
	TypeOutpatient RecordType = "门诊"
	TypeInpatient  RecordType = "住院"
	TypeEmergency  RecordType = "急诊"
	TypePhysical   RecordType = "体检"
)

// Status is the lifecycle status of a record. The values are ordered
// draft -> submitted -> reviewed -> signed -> archived, but transitions are
// not enforced.
type Status string

const (
	StatusDraft     Status = "草稿"
	StatusSubmitted Status = "已提交"
	StatusReviewed  Status = "已审核"
	StatusSigned    Status = "已签名"
	StatusArchived  Status = "已归档"
)

// PrescriptionIssued is stamped on every new prescription.
const PrescriptionIssued = "已开具"

// Record maps to the medical_records table.
type Record struct {
	RecordID            string    `db:"record_id" json:"record_id"`
	PatientID           string    `db:"patient_id" json:"patient_id"`
	RecordType          string    `db:"record_type" json:"record_type"`
	VisitDate           string    `db:"visit_date" json:"visit_date"`
	Department          string    `db:"department" json:"department"`
	Doctor              string    `db:"doctor" json:"doctor"`
	ChiefComplaint      *string   `db:"chief_complaint" json:"chief_complaint,omitempty"`
	PresentIllness      *string   `db:"present_illness" json:"present_illness,omitempty"`
	PastHistory         *string   `db:"past_history" json:"past_history,omitempty"`
	AllergicHistory     *string   `db:"allergic_history" json:"allergic_history,omitempty"`
	PhysicalExamination *string   `db:"physical_examination" json:"physical_examination,omitempty"`
	Diagnosis           string    `db:"diagnosis" json:"diagnosis"`
	TreatmentPlan       *string   `db:"treatment_plan" json:"treatment_plan,omitempty"`
	RecordStatus        string    `db:"record_status" json:"record_status"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
	CreatedBy           string    `db:"created_by" json:"created_by"`
	UpdatedBy           string    `db:"updated_by" json:"updated_by"`
}

// Version maps to the record_versions table. Versions are never updated or
// deleted.
type Version struct {
	VersionID     string          `db:"version_id" json:"version_id"`
	RecordID      string          `db:"record_id" json:"record_id"`
	Version       int             `db:"version" json:"version"`
	Content       json.RawMessage `db:"content" json:"content"`
	ChangedFields []string        `db:"changed_fields" json:"changed_fields"`
	ChangedAt     time.Time       `db:"changed_at" json:"changed_at"`
	ChangedBy     string          `db:"changed_by" json:"changed_by"`
}

// Examination maps to the examination_results table.
type Examination struct {
	ExamID         string    `db:"exam_id" json:"exam_id"`
	RecordID       string    `db:"record_id" json:"record_id"`
	ExamType       string    `db:"exam_type" json:"exam_type"`
	ExamDate       string    `db:"exam_date" json:"exam_date"`
	ExamDepartment string    `db:"exam_department" json:"exam_department"`
	ExamDoctor     string    `db:"exam_doctor" json:"exam_doctor"`
	ExamResult     string    `db:"exam_result" json:"exam_result"`
	ExamConclusion *string   `db:"exam_conclusion" json:"exam_conclusion,omitempty"`
	Notes          *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	CreatedBy      string    `db:"created_by" json:"created_by"`
}

// Prescription maps to the prescriptions table.
type Prescription struct {
	PrescriptionID   string    `db:"prescription_id" json:"prescription_id"`
	RecordID         string    `db:"record_id" json:"record_id"`
	PrescriptionType string    `db:"prescription_type" json:"prescription_type"`
	MedicationName   string    `db:"medication_name" json:"medication_name"`
	Specification    string    `db:"specification" json:"specification"`
	Dosage           string    `db:"dosage" json:"dosage"`
	Frequency        string    `db:"frequency" json:"frequency"`
	Duration         string    `db:"duration" json:"duration"`
	Usage            string    `db:"usage" json:"usage"`
	Quantity         int       `db:"quantity" json:"quantity"`
	Unit             string    `db:"unit" json:"unit"`
	Notes            *string   `db:"notes" json:"notes,omitempty"`
	Status           string    `db:"status" json:"status"`
	PrescribedAt     time.Time `db:"prescribed_at" json:"prescribed_at"`
	PrescribedBy     string    `db:"prescribed_by" json:"prescribed_by"`
}

// Operation maps to the operation_records table.
type Operation struct {
	OperationID            string    `db:"operation_id" json:"operation_id"`
	RecordID               string    `db:"record_id" json:"record_id"`
	OperationName          string    `db:"operation_name" json:"operation_name"`
	OperationDate          string    `db:"operation_date" json:"operation_date"`
	PreoperativeDiagnosis  string    `db:"preoperative_diagnosis" json:"preoperative_diagnosis"`
	PostoperativeDiagnosis string    `db:"postoperative_diagnosis" json:"postoperative_diagnosis"`
	OperationLevel         string    `db:"operation_level" json:"operation_level"`
	Surgeon                string    `db:"surgeon" json:"surgeon"`
	Assistant              *string   `db:"assistant" json:"assistant,omitempty"`
	Anesthesiologist       *string   `db:"anesthesiologist" json:"anesthesiologist,omitempty"`
	AnesthesiaMethod       *string   `db:"anesthesia_method" json:"anesthesia_method,omitempty"`
	OperationDescription   *string   `db:"operation_description" json:"operation_description,omitempty"`
	BloodLoss              *int      `db:"blood_loss" json:"blood_loss,omitempty"`
	Notes                  *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	CreatedBy              string    `db:"created_by" json:"created_by"`
}

// Attachment maps to the record_attachments table. FilePath is the blob key
// of the stored binary.
type Attachment struct {
	AttachmentID string    `db:"attachment_id" json:"attachment_id"`
	RecordID     string    `db:"record_id" json:"record_id"`
	FileName     string    `db:"file_name" json:"file_name"`
	FileType     string    `db:"file_type" json:"file_type"`
	FilePath     string    `db:"file_path" json:"file_path"`
	FileSize     int64     `db:"file_size" json:"file_size"`
	UploadedAt   time.Time `db:"uploaded_at" json:"uploaded_at"`
	UploadedBy   string    `db:"uploaded_by" json:"uploaded_by"`
}

// View is a record joined with all of its children and, optionally, its
// version history.
type View struct {
	Record
	Examinations  []*Examination  `json:"examinations"`
	Prescriptions []*Prescription `json:"prescriptions"`
	Operations    []*Operation    `json:"operations"`
	Attachments   []*Attachment   `json:"attachments"`
	Versions      []*Version      `json:"versions,omitempty"`
}

// Compile-time checks that the input types can be validated.
var (
	_ validation.FieldSet = RecordFields{}
	_ validation.FieldSet = ExaminationFields{}
	_ validation.FieldSet = PrescriptionFields{}
	_ validation.FieldSet = OperationFields{}
	_ validation.FieldSet = AttachmentFields{}
)
