package record

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ehr/medrecord/internal/domain/validation"
	"github.com/ehr/medrecord/internal/platform/blobstore"
)

// Service validates input with the rule catalog before handing it to the
// Store. Writes with violations are rejected with a *validation.Error.
type Service struct {
	store     *Store
	validator *validation.Engine
	blobs     blobstore.BlobStore
	logger    zerolog.Logger
}

func NewService(store *Store, validator *validation.Engine, blobs blobstore.BlobStore, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		validator: validator,
		blobs:     blobs,
		logger:    logger.With().Str("component", "record_service").Logger(),
	}
}

func (s *Service) reject(op, id string, vs validation.Violations) error {
	err := vs.Err()
	if err != nil {
		s.logger.Warn().Str("op", op).Str("record_id", id).Int("violations", len(vs)).Msg("validation failed")
	}
	return err
}

func (s *Service) CreateRecord(ctx context.Context, fields RecordFields, author string) (string, error) {
	if err := s.reject("create_record", "", s.validator.ValidateRecord(fields)); err != nil {
		return "", err
	}
	return s.store.CreateRecord(ctx, fields, author)
}

func (s *Service) UpdateRecord(ctx context.Context, id string, patch RecordFields, author string, expectedVersion int) (*Version, error) {
	if err := s.reject("update_record", id, s.validator.ValidateRecord(patch)); err != nil {
		return nil, err
	}
	return s.store.UpdateRecord(ctx, id, patch, author, expectedVersion)
}

func (s *Service) GetRecord(ctx context.Context, id string, includeVersions bool) (*View, error) {
	return s.store.GetRecord(ctx, id, includeVersions)
}

func (s *Service) ListVersions(ctx context.Context, id string) ([]*Version, error) {
	return s.store.ListVersions(ctx, id)
}

func (s *Service) GetVersion(ctx context.Context, id string, version int) (*Version, error) {
	return s.store.GetVersion(ctx, id, version)
}

func (s *Service) AddExamination(ctx context.Context, recordID string, f ExaminationFields, author string) (*Examination, error) {
	if err := s.reject("add_examination", recordID, s.validator.ValidateExamination(f)); err != nil {
		return nil, err
	}
	return s.store.AddExamination(ctx, recordID, f, author)
}

func (s *Service) AddPrescription(ctx context.Context, recordID string, f PrescriptionFields, author string) (*Prescription, error) {
	if err := s.reject("add_prescription", recordID, s.validator.ValidatePrescription(f)); err != nil {
		return nil, err
	}
	return s.store.AddPrescription(ctx, recordID, f, author)
}

func (s *Service) AddOperation(ctx context.Context, recordID string, f OperationFields, author string) (*Operation, error) {
	if err := s.reject("add_operation", recordID, s.validator.ValidateOperation(f)); err != nil {
		return nil, err
	}
	return s.store.AddOperation(ctx, recordID, f, author)
}

// Upload describes an attachment binary as received from the client.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// UploadAttachment stores the binary in the blob store and records it as an
// attachment whose file_path is the blob key. The blob is removed again if
// the attachment row cannot be written.
func (s *Service) UploadAttachment(ctx context.Context, recordID string, up Upload, author string) (*Attachment, error) {
	fields := AttachmentFields{
		FileName: &up.FileName,
		FileType: &up.ContentType,
		FileSize: &up.Size,
	}
	if err := s.reject("add_attachment", recordID, s.validator.ValidateAttachment(fields)); err != nil {
		return nil, err
	}

	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    up.FileName,
		ContentType: up.ContentType,
		RecordID:    recordID,
		CreatedBy:   author,
	}, up.Content)
	if err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) {
			return nil, s.reject("add_attachment", recordID, validation.Violations{{
				Field: "file_size", Message: "file size exceeds the 100MB limit", Code: validation.CodeRange,
			}})
		}
		s.logger.Error().Err(err).Str("op", "add_attachment").Str("record_id", recordID).Msg("blob upload failed")
		return nil, fmt.Errorf("add_attachment %s: %w: %w", recordID, ErrPersistence, err)
	}

	fields.FilePath = &meta.ID
	fields.FileSize = &meta.Size
	att, err := s.store.AddAttachment(ctx, recordID, fields, author)
	if err != nil {
		if derr := s.blobs.Delete(ctx, meta.ID); derr != nil {
			s.logger.Error().Err(derr).Str("blob_id", meta.ID).Msg("orphaned attachment blob")
		}
		return nil, err
	}
	return att, nil
}
