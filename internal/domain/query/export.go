package query

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ehr/medrecord/internal/domain/record"
	"github.com/ehr/medrecord/internal/platform/blobstore"
	"github.com/ehr/medrecord/internal/platform/metrics"
	"github.com/ehr/medrecord/internal/platform/outfile"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

type Format string

const (
	FormatJSON    Format = "json"
	FormatExcel   Format = "excel"
	FormatArchive Format = "archive"
)

func (f Format) ext() string {
	switch f {
	case FormatExcel:
		return ".xlsx"
	case FormatArchive:
		return ".zip"
	}
	return ".json"
}

// ParseFormat accepts json (structured), excel (xlsx, tabular) and archive
// (zip), case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "structured":
		return FormatJSON, nil
	case "excel", "xlsx", "tabular":
		return FormatExcel, nil
	case "archive", "zip":
		return FormatArchive, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

const exportTimeLayout = "20060102_150405"

// Export writes the full snapshots of ids to a new file under the export
// directory and returns its path. An excel export that includes attachments
// becomes an archive. Any failure aborts the whole export and removes the
// partial file.
func (e *Engine) Export(ctx context.Context, ids []string, format string, includeAttachments bool) (path string, err error) {
	defer metrics.Observe("query_engine", "export", time.Now(), &err)

	f, err := ParseFormat(format)
	if err != nil {
		e.logger.Warn().Err(err).Str("op", "export").Str("format", format).Msg("export rejected")
		return "", err
	}
	if f == FormatExcel && includeAttachments {
		f = FormatArchive
	}

	path, err = e.export(ctx, ids, f, includeAttachments)
	if err != nil {
		e.logger.Error().Err(err).Str("op", "export").Str("format", string(f)).Int("records", len(ids)).Msg("export failed")
		return "", err
	}
	e.logger.Info().Str("path", path).Str("format", string(f)).Int("records", len(ids)).Msg("records exported")
	return path, nil
}

func (e *Engine) export(ctx context.Context, ids []string, f Format, includeAttachments bool) (string, error) {
	views := make([]*record.View, 0, len(ids))
	for _, id := range ids {
		v, err := e.records.GetRecord(ctx, id, false)
		if err != nil {
			return "", fmt.Errorf("load %s: %w", id, err)
		}
		views = append(views, v)
	}

	if f == FormatArchive && includeAttachments {
		if err := e.checkAttachments(ctx, views); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(e.exportDir, 0o750); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	base := filepath.Join(e.exportDir, "medical_records_"+e.now().Format(exportTimeLayout))
	return outfile.Write(base, f.ext(), 0o640, func(w io.Writer) error {
		switch f {
		case FormatJSON:
			return writeJSON(w, views)
		case FormatExcel:
			return writeExcel(w, views)
		default:
			return e.writeArchive(ctx, w, views, includeAttachments)
		}
	})
}

// checkAttachments verifies that every attachment points at a blob stored
// for its own record, so an archive is never started with a hole in it.
func (e *Engine) checkAttachments(ctx context.Context, views []*record.View) error {
	for _, v := range views {
		if len(v.Attachments) == 0 {
			continue
		}
		metas, err := e.blobs.ListByRecord(ctx, v.RecordID)
		if err != nil {
			return fmt.Errorf("list blobs for %s: %w", v.RecordID, err)
		}
		stored := make(map[string]bool, len(metas))
		for _, m := range metas {
			stored[m.ID] = true
		}
		for _, a := range v.Attachments {
			if !stored[a.FilePath] {
				return fmt.Errorf("attachment %s of %s: %w", a.AttachmentID, v.RecordID, blobstore.ErrBlobNotFound)
			}
		}
	}
	return nil
}

func writeJSON(w io.Writer, views []*record.View) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(views); err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	return nil
}

// writeArchive bundles the tabular export and, when requested, every
// attachment binary under attachments/<attachment_id>_<file_name>.
func (e *Engine) writeArchive(ctx context.Context, w io.Writer, views []*record.View, includeAttachments bool) error {
	zw := zip.NewWriter(w)

	sheet, err := zw.Create("medical_records.xlsx")
	if err != nil {
		return fmt.Errorf("create archive entry: %w", err)
	}
	if err := writeExcel(sheet, views); err != nil {
		return err
	}

	if includeAttachments {
		for _, v := range views {
			for _, a := range v.Attachments {
				if err := e.addAttachment(ctx, zw, a); err != nil {
					return err
				}
			}
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func (e *Engine) addAttachment(ctx context.Context, zw *zip.Writer, a *record.Attachment) error {
	rc, _, err := e.blobs.Download(ctx, a.FilePath)
	if err != nil {
		return fmt.Errorf("attachment %s: %w", a.AttachmentID, err)
	}
	defer rc.Close()

	entry, err := zw.Create("attachments/" + a.AttachmentID + "_" + filepath.Base(a.FileName))
	if err != nil {
		return fmt.Errorf("create archive entry: %w", err)
	}
	if _, err := io.Copy(entry, rc); err != nil {
		return fmt.Errorf("copy attachment %s: %w", a.AttachmentID, err)
	}
	return nil
}

// ImportStructured decodes a structured (json) export back into record
// views.
func ImportStructured(r io.Reader) ([]*record.View, error) {
	var views []*record.View
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&views); err != nil {
		return nil, fmt.Errorf("decode structured export: %w", err)
	}
	for i, v := range views {
		if v == nil || v.RecordID == "" {
			return nil, fmt.Errorf("decode structured export: entry %d has no record_id", i)
		}
	}
	return views, nil
}
