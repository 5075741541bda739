package validation

import (
	"regexp"
	"time"
)

// DateLayout is the calendar date layout used by every date field.
const DateLayout = "2006-01-02"

// MaxAttachmentSize is the attachment size ceiling (100 MiB).
const MaxAttachmentSize = 100 * 1024 * 1024

var (
	RecordTypes     = []string{"门诊", "住院", "急诊", "体检"}
	RecordStatuses  = []string{"草稿", "已提交", "已审核", "已签名", "已归档"}
	OperationLevels = []string{"一级", "二级", "三级", "四级"}
	AttachmentTypes = []string{
		"application/pdf",
		"image/jpeg",
		"image/png",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
)

// Unicode classes: RE2 \d and \w only match ASCII.
var (
	patientIDPattern = regexp.MustCompile(`^P\p{Nd}{8}$`)
	dosagePattern    = regexp.MustCompile(`^\p{Nd}+\.?\p{Nd}*[a-zA-Z]+$`)
	fileNamePattern  = regexp.MustCompile(`^[\p{L}\p{M}\p{N}_\-. ]+$`)
)

// DateFormat accepts zero-padded YYYY-MM-DD calendar dates only. Visit
// windows and search bounds compare dates as strings.
var DateFormat = Format{
	Name:    "date",
	Parse:   func(s string) bool { _, err := time.Parse(DateLayout, s); return err == nil },
	Message: "date must be formatted as YYYY-MM-DD",
}

// PatientIDFormat accepts a "P" prefix followed by exactly eight digits.
var PatientIDFormat = Format{
	Name:    "patient_id",
	Parse:   patientIDPattern.MatchString,
	Message: "patient id must be P followed by 8 digits",
}

func required(msg string) Required { return Required{Message: msg} }

func dateField(msg string) Format {
	f := DateFormat
	f.Message = msg
	return f
}

// DefaultCatalog builds the fixed rule catalog. now is consulted by the
// visit-date check, which rejects dates after today.
func DefaultCatalog(now func() time.Time) *Catalog {
	c := NewCatalog()

	c.Register("patient_id", required("patient id is required"), PatientIDFormat)
	c.Register("record_type",
		required("record type is required"),
		Enum{Values: RecordTypes, Message: "invalid record type"})
	c.Register("visit_date",
		required("visit date is required"),
		dateField("visit date must be formatted as YYYY-MM-DD"),
		Custom{Check: notAfterToday(now, "visit date cannot be later than today")})
	c.Register("department", required("department is required"))
	c.Register("doctor", required("doctor is required"))
	c.Register("record_status",
		Enum{Values: RecordStatuses, Message: "invalid record status"})

	c.Register("chief_complaint",
		required("chief complaint is required"),
		Range{MinLength: IntBound(2), MaxLength: IntBound(500),
			Message: "chief complaint must be 2-500 characters"})
	c.Register("present_illness",
		required("present illness is required"),
		Range{MinLength: IntBound(10), MaxLength: IntBound(2000),
			Message: "present illness must be 10-2000 characters"})
	c.Register("diagnosis", required("diagnosis is required"))

	c.Register("exam_type", required("exam type is required"))
	c.Register("exam_date",
		required("exam date is required"),
		dateField("exam date must be formatted as YYYY-MM-DD"))
	c.Register("exam_result", required("exam result is required"))

	c.Register("medication_name", required("medication name is required"))
	c.Register("dosage",
		required("dosage is required"),
		Regex{Pattern: dosagePattern, Message: "dosage must look like 0.3g"})
	c.Register("frequency", required("frequency is required"))
	c.Register("duration", required("duration is required"))

	c.Register("operation_name", required("operation name is required"))
	c.Register("operation_date",
		required("operation date is required"),
		dateField("operation date must be formatted as YYYY-MM-DD"))
	c.Register("surgeon", required("surgeon is required"))
	c.Register("operation_level",
		required("operation level is required"),
		Enum{Values: OperationLevels, Message: "invalid operation level"})

	c.Register("file_name",
		required("file name is required"),
		Regex{Pattern: fileNamePattern, Message: "file name contains illegal characters"})
	c.Register("file_type",
		required("file type is required"),
		Enum{Values: AttachmentTypes, Message: "unsupported file type"})
	c.Register("file_size",
		Range{Min: FloatBound(0), Max: FloatBound(MaxAttachmentSize),
			Message: "file size exceeds the 100MB limit"})

	return c
}

// notAfterToday rejects dates later than the current local date. Values that
// do not parse are left to the Format rule.
func notAfterToday(now func() time.Time, msg string) func(any) []Violation {
	return func(value any) []Violation {
		s := text(value)
		if s == "" {
			return nil
		}
		t := now()
		d, err := time.ParseInLocation(DateLayout, s, t.Location())
		if err != nil {
			return nil
		}
		today := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		if d.After(today) {
			return []Violation{{Message: msg, Code: CodeCustom}}
		}
		return nil
	}
}
