package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ehr/medrecord/internal/domain/record"
)

const sheetName = "Sheet1"

// childSeparator joins the values of one child column across a record's
// children. The per-child row structure is not preserved.
const childSeparator = "; "

var recordColumns = []string{
	"record_id", "patient_id", "record_type", "visit_date", "department", "doctor",
	"chief_complaint", "present_illness", "past_history", "allergic_history",
	"physical_examination", "diagnosis", "treatment_plan", "record_status",
	"created_at", "updated_at", "created_by", "updated_by",
}

type childColumns struct {
	prefix  string
	columns []string
	rows    func(v *record.View) []any
}

var childTables = []childColumns{
	{
		prefix: "examinations",
		columns: []string{"exam_id", "exam_type", "exam_date", "exam_department", "exam_doctor",
			"exam_result", "exam_conclusion", "notes", "created_at", "created_by"},
		rows: func(v *record.View) []any { return asAny(v.Examinations) },
	},
	{
		prefix: "prescriptions",
		columns: []string{"prescription_id", "prescription_type", "medication_name", "specification",
			"dosage", "frequency", "duration", "usage", "quantity", "unit", "notes", "status",
			"prescribed_at", "prescribed_by"},
		rows: func(v *record.View) []any { return asAny(v.Prescriptions) },
	},
	{
		prefix: "operations",
		columns: []string{"operation_id", "operation_name", "operation_date", "preoperative_diagnosis",
			"postoperative_diagnosis", "operation_level", "surgeon", "assistant", "anesthesiologist",
			"anesthesia_method", "operation_description", "blood_loss", "notes", "created_at", "created_by"},
		rows: func(v *record.View) []any { return asAny(v.Operations) },
	},
	{
		prefix: "attachments",
		columns: []string{"attachment_id", "file_name", "file_type", "file_path", "file_size",
			"uploaded_at", "uploaded_by"},
		rows: func(v *record.View) []any { return asAny(v.Attachments) },
	},
}

func asAny[T any](items []*T) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}

// TabularHeader returns the column names of the tabular export: the record
// columns followed by one <collection>.<column> entry per child column.
func TabularHeader() []string {
	header := append([]string{}, recordColumns...)
	for _, t := range childTables {
		for _, c := range t.columns {
			header = append(header, t.prefix+"."+c)
		}
	}
	return header
}

// flatten renders one view as a row aligned with TabularHeader.
func flatten(v *record.View) ([]string, error) {
	rec, err := toMap(v.Record)
	if err != nil {
		return nil, err
	}
	row := make([]string, 0, len(recordColumns))
	for _, c := range recordColumns {
		row = append(row, cell(rec[c]))
	}

	for _, t := range childTables {
		children := t.rows(v)
		values := make([][]string, len(t.columns))
		for _, child := range children {
			m, err := toMap(child)
			if err != nil {
				return nil, err
			}
			for i, c := range t.columns {
				values[i] = append(values[i], cell(m[c]))
			}
		}
		for i := range t.columns {
			row = append(row, strings.Join(values[i], childSeparator))
		}
	}
	return row, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return m, nil
}

func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return fmt.Sprint(v)
}

func writeExcel(w io.Writer, views []*record.View) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := setRow(f, 1, TabularHeader()); err != nil {
		return err
	}
	for i, v := range views {
		row, err := flatten(v)
		if err != nil {
			return err
		}
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write spreadsheet: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, n int, values []string) error {
	cellName, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := f.SetSheetRow(sheetName, cellName, &row); err != nil {
		return fmt.Errorf("write spreadsheet row %d: %w", n, err)
	}
	return nil
}
