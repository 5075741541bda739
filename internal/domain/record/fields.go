package record

import (
	"bytes"
	"encoding/json"

	"github.com/ehr/medrecord/internal/domain/validation"
)

// Input structs carry one pointer per writable column. A nil pointer means
// the field was not supplied: it is neither validated nor written. A key sent
// as an explicit JSON null is remembered in nulls and validated as an empty
// value, so a null required field is a violation rather than a missing column.

type RecordFields struct {
	PatientID           *string `json:"patient_id,omitempty"`
	RecordType          *string `json:"record_type,omitempty"`
	VisitDate           *string `json:"visit_date,omitempty"`
	Department          *string `json:"department,omitempty"`
	Doctor              *string `json:"doctor,omitempty"`
	ChiefComplaint      *string `json:"chief_complaint,omitempty"`
	PresentIllness      *string `json:"present_illness,omitempty"`
	PastHistory         *string `json:"past_history,omitempty"`
	AllergicHistory     *string `json:"allergic_history,omitempty"`
	PhysicalExamination *string `json:"physical_examination,omitempty"`
	Diagnosis           *string `json:"diagnosis,omitempty"`
	TreatmentPlan       *string `json:"treatment_plan,omitempty"`
	RecordStatus        *string `json:"record_status,omitempty"`

	nulls nullSet
}

// nullSet holds the keys a JSON object set to null.
type nullSet map[string]bool

func readNulls(data []byte) (nullSet, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var out nullSet
	for k, v := range raw {
		if bytes.Equal(v, []byte("null")) {
			if out == nil {
				out = nullSet{}
			}
			out[k] = true
		}
	}
	return out, nil
}

type fieldList struct {
	fields []validation.Field
	nulls  nullSet
}

func (l *fieldList) null(name string) {
	if l.nulls[name] {
		l.fields = append(l.fields, validation.Field{Name: name, Value: nil})
	}
}

func (l *fieldList) str(name string, v *string) {
	if v == nil {
		l.null(name)
		return
	}
	l.fields = append(l.fields, validation.Field{Name: name, Value: *v})
}

func (l *fieldList) num(name string, v *int) {
	if v == nil {
		l.null(name)
		return
	}
	l.fields = append(l.fields, validation.Field{Name: name, Value: *v})
}

func (l *fieldList) num64(name string, v *int64) {
	if v == nil {
		l.null(name)
		return
	}
	l.fields = append(l.fields, validation.Field{Name: name, Value: *v})
}

func (f *RecordFields) UnmarshalJSON(data []byte) (err error) {
	type plain RecordFields
	if err = json.Unmarshal(data, (*plain)(f)); err != nil {
		return err
	}
	f.nulls, err = readNulls(data)
	return err
}

func (f *ExaminationFields) UnmarshalJSON(data []byte) (err error) {
	type plain ExaminationFields
	if err = json.Unmarshal(data, (*plain)(f)); err != nil {
		return err
	}
	f.nulls, err = readNulls(data)
	return err
}

func (f *PrescriptionFields) UnmarshalJSON(data []byte) (err error) {
	type plain PrescriptionFields
	if err = json.Unmarshal(data, (*plain)(f)); err != nil {
		return err
	}
	f.nulls, err = readNulls(data)
	return err
}

func (f *OperationFields) UnmarshalJSON(data []byte) (err error) {
	type plain OperationFields
	if err = json.Unmarshal(data, (*plain)(f)); err != nil {
		return err
	}
	f.nulls, err = readNulls(data)
	return err
}

func (f *AttachmentFields) UnmarshalJSON(data []byte) (err error) {
	type plain AttachmentFields
	if err = json.Unmarshal(data, (*plain)(f)); err != nil {
		return err
	}
	f.nulls, err = readNulls(data)
	return err
}

func (f RecordFields) Fields() []validation.Field {
	l := fieldList{nulls: f.nulls}
	l.str("patient_id", f.PatientID)
	l.str("record_type", f.RecordType)
	l.str("visit_date", f.VisitDate)
	l.str("department", f.Department)
	l.str("doctor", f.Doctor)
	l.str("chief_complaint", f.ChiefComplaint)
	l.str("present_illness", f.PresentIllness)
	l.str("past_history", f.PastHistory)
	l.str("allergic_history", f.AllergicHistory)
	l.str("physical_examination", f.PhysicalExamination)
	l.str("diagnosis", f.Diagnosis)
	l.str("treatment_plan", f.TreatmentPlan)
	l.str("record_status", f.RecordStatus)
	return l.fields
}

// Names returns the supplied field names, explicit nulls included, in
// declaration order.
func (f RecordFields) Names() []string {
	return names(f.Fields())
}

func (f RecordFields) applyTo(r *Record) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	// An explicit null clears an optional column.
	setOpt := func(dst **string, v *string, name string) {
		switch {
		case v != nil:
			s := *v
			*dst = &s
		case f.nulls[name]:
			*dst = nil
		}
	}
	set(&r.PatientID, f.PatientID)
	set(&r.RecordType, f.RecordType)
	set(&r.VisitDate, f.VisitDate)
	set(&r.Department, f.Department)
	set(&r.Doctor, f.Doctor)
	setOpt(&r.ChiefComplaint, f.ChiefComplaint, "chief_complaint")
	setOpt(&r.PresentIllness, f.PresentIllness, "present_illness")
	setOpt(&r.PastHistory, f.PastHistory, "past_history")
	setOpt(&r.AllergicHistory, f.AllergicHistory, "allergic_history")
	setOpt(&r.PhysicalExamination, f.PhysicalExamination, "physical_examination")
	set(&r.Diagnosis, f.Diagnosis)
	setOpt(&r.TreatmentPlan, f.TreatmentPlan, "treatment_plan")
	set(&r.RecordStatus, f.RecordStatus)
}

func (f RecordFields) missingColumns() []string {
	return nilColumns(
		column{"patient_id", f.PatientID == nil},
		column{"record_type", f.RecordType == nil},
		column{"visit_date", f.VisitDate == nil},
		column{"department", f.Department == nil},
		column{"doctor", f.Doctor == nil},
		column{"diagnosis", f.Diagnosis == nil},
	)
}

type ExaminationFields struct {
	ExamType       *string `json:"exam_type,omitempty"`
	ExamDate       *string `json:"exam_date,omitempty"`
	ExamDepartment *string `json:"exam_department,omitempty"`
	ExamDoctor     *string `json:"exam_doctor,omitempty"`
	ExamResult     *string `json:"exam_result,omitempty"`
	ExamConclusion *string `json:"exam_conclusion,omitempty"`
	Notes          *string `json:"notes,omitempty"`

	nulls nullSet
}

func (f ExaminationFields) Fields() []validation.Field {
	l := fieldList{nulls: f.nulls}
	l.str("exam_type", f.ExamType)
	l.str("exam_date", f.ExamDate)
	l.str("exam_department", f.ExamDepartment)
	l.str("exam_doctor", f.ExamDoctor)
	l.str("exam_result", f.ExamResult)
	l.str("exam_conclusion", f.ExamConclusion)
	l.str("notes", f.Notes)
	return l.fields
}

func (f ExaminationFields) missingColumns() []string {
	return nilColumns(
		column{"exam_type", f.ExamType == nil},
		column{"exam_date", f.ExamDate == nil},
		column{"exam_department", f.ExamDepartment == nil},
		column{"exam_doctor", f.ExamDoctor == nil},
		column{"exam_result", f.ExamResult == nil},
	)
}

func (f ExaminationFields) build(id, recordID, author string, now Clock) *Examination {
	return &Examination{
		ExamID:         id,
		RecordID:       recordID,
		ExamType:       deref(f.ExamType),
		ExamDate:       deref(f.ExamDate),
		ExamDepartment: deref(f.ExamDepartment),
		ExamDoctor:     deref(f.ExamDoctor),
		ExamResult:     deref(f.ExamResult),
		ExamConclusion: f.ExamConclusion,
		Notes:          f.Notes,
		CreatedAt:      now(),
		CreatedBy:      author,
	}
}

type PrescriptionFields struct {
	PrescriptionType *string `json:"prescription_type,omitempty"`
	MedicationName   *string `json:"medication_name,omitempty"`
	Specification    *string `json:"specification,omitempty"`
	Dosage           *string `json:"dosage,omitempty"`
	Frequency        *string `json:"frequency,omitempty"`
	Duration         *string `json:"duration,omitempty"`
	Usage            *string `json:"usage,omitempty"`
	Quantity         *int    `json:"quantity,omitempty"`
	Unit             *string `json:"unit,omitempty"`
	Notes            *string `json:"notes,omitempty"`

	nulls nullSet
}

func (f PrescriptionFields) Fields() []validation.Field {
	l := fieldList{nulls: f.nulls}
	l.str("prescription_type", f.PrescriptionType)
	l.str("medication_name", f.MedicationName)
	l.str("specification", f.Specification)
	l.str("dosage", f.Dosage)
	l.str("frequency", f.Frequency)
	l.str("duration", f.Duration)
	l.str("usage", f.Usage)
	l.num("quantity", f.Quantity)
	l.str("unit", f.Unit)
	l.str("notes", f.Notes)
	return l.fields
}

func (f PrescriptionFields) missingColumns() []string {
	return nilColumns(
		column{"prescription_type", f.PrescriptionType == nil},
		column{"medication_name", f.MedicationName == nil},
		column{"specification", f.Specification == nil},
		column{"dosage", f.Dosage == nil},
		column{"frequency", f.Frequency == nil},
		column{"duration", f.Duration == nil},
		column{"usage", f.Usage == nil},
		column{"quantity", f.Quantity == nil},
		column{"unit", f.Unit == nil},
	)
}

func (f PrescriptionFields) build(id, recordID, author string, now Clock) *Prescription {
	p := &Prescription{
		PrescriptionID:   id,
		RecordID:         recordID,
		PrescriptionType: deref(f.PrescriptionType),
		MedicationName:   deref(f.MedicationName),
		Specification:    deref(f.Specification),
		Dosage:           deref(f.Dosage),
		Frequency:        deref(f.Frequency),
		Duration:         deref(f.Duration),
		Usage:            deref(f.Usage),
		Unit:             deref(f.Unit),
		Notes:            f.Notes,
		Status:           PrescriptionIssued,
		PrescribedAt:     now(),
		PrescribedBy:     author,
	}
	if f.Quantity != nil {
		p.Quantity = *f.Quantity
	}
	return p
}

type OperationFields struct {
	OperationName          *string `json:"operation_name,omitempty"`
	OperationDate          *string `json:"operation_date,omitempty"`
	PreoperativeDiagnosis  *string `json:"preoperative_diagnosis,omitempty"`
	PostoperativeDiagnosis *string `json:"postoperative_diagnosis,omitempty"`
	OperationLevel         *string `json:"operation_level,omitempty"`
	Surgeon                *string `json:"surgeon,omitempty"`
	Assistant              *string `json:"assistant,omitempty"`
	Anesthesiologist       *string `json:"anesthesiologist,omitempty"`
	AnesthesiaMethod       *string `json:"anesthesia_method,omitempty"`
	OperationDescription   *string `json:"operation_description,omitempty"`
	BloodLoss              *int    `json:"blood_loss,omitempty"`
	Notes                  *string `json:"notes,omitempty"`

	nulls nullSet
}

func (f OperationFields) Fields() []validation.Field {
	l := fieldList{nulls: f.nulls}
	l.str("operation_name", f.OperationName)
	l.str("operation_date", f.OperationDate)
	l.str("preoperative_diagnosis", f.PreoperativeDiagnosis)
	l.str("postoperative_diagnosis", f.PostoperativeDiagnosis)
	l.str("operation_level", f.OperationLevel)
	l.str("surgeon", f.Surgeon)
	l.str("assistant", f.Assistant)
	l.str("anesthesiologist", f.Anesthesiologist)
	l.str("anesthesia_method", f.AnesthesiaMethod)
	l.str("operation_description", f.OperationDescription)
	l.num("blood_loss", f.BloodLoss)
	l.str("notes", f.Notes)
	return l.fields
}

func (f OperationFields) missingColumns() []string {
	return nilColumns(
		column{"operation_name", f.OperationName == nil},
		column{"operation_date", f.OperationDate == nil},
		column{"preoperative_diagnosis", f.PreoperativeDiagnosis == nil},
		column{"postoperative_diagnosis", f.PostoperativeDiagnosis == nil},
		column{"operation_level", f.OperationLevel == nil},
		column{"surgeon", f.Surgeon == nil},
	)
}

func (f OperationFields) build(id, recordID, author string, now Clock) *Operation {
	return &Operation{
		OperationID:            id,
		RecordID:               recordID,
		OperationName:          deref(f.OperationName),
		OperationDate:          deref(f.OperationDate),
		PreoperativeDiagnosis:  deref(f.PreoperativeDiagnosis),
		PostoperativeDiagnosis: deref(f.PostoperativeDiagnosis),
		OperationLevel:         deref(f.OperationLevel),
		Surgeon:                deref(f.Surgeon),
		Assistant:              f.Assistant,
		Anesthesiologist:       f.Anesthesiologist,
		AnesthesiaMethod:       f.AnesthesiaMethod,
		OperationDescription:   f.OperationDescription,
		BloodLoss:              f.BloodLoss,
		Notes:                  f.Notes,
		CreatedAt:              now(),
		CreatedBy:              author,
	}
}

// AttachmentFields describes an uploaded binary. FilePath is the blob key
// under which the binary was stored.
type AttachmentFields struct {
	FileName *string `json:"file_name,omitempty"`
	FileType *string `json:"file_type,omitempty"`
	FilePath *string `json:"file_path,omitempty"`
	FileSize *int64  `json:"file_size,omitempty"`

	nulls nullSet
}

func (f AttachmentFields) Fields() []validation.Field {
	l := fieldList{nulls: f.nulls}
	l.str("file_name", f.FileName)
	l.str("file_type", f.FileType)
	l.str("file_path", f.FilePath)
	l.num64("file_size", f.FileSize)
	return l.fields
}

func (f AttachmentFields) missingColumns() []string {
	return nilColumns(
		column{"file_name", f.FileName == nil},
		column{"file_type", f.FileType == nil},
		column{"file_path", f.FilePath == nil},
		column{"file_size", f.FileSize == nil},
	)
}

func (f AttachmentFields) build(id, recordID, author string, now Clock) *Attachment {
	a := &Attachment{
		AttachmentID: id,
		RecordID:     recordID,
		FileName:     deref(f.FileName),
		FileType:     deref(f.FileType),
		FilePath:     deref(f.FilePath),
		UploadedAt:   now(),
		UploadedBy:   author,
	}
	if f.FileSize != nil {
		a.FileSize = *f.FileSize
	}
	return a
}

func names(fields []validation.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

type column struct {
	name    string
	missing bool
}

func nilColumns(cols ...column) []string {
	var out []string
	for _, c := range cols {
		if c.missing {
			out = append(out, c.name)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr is a convenience for building input structs.
func Ptr[T any](v T) *T { return &v }
