package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gilkh/livret/internal/logging"
)

// SignatureSnapshotter turns a signature reference into an inline data URI.
type SignatureSnapshotter interface {
	DataURI(ctx context.Context, ref string) (string, error)
}

// SignatureService signs and unsigns assignments
type SignatureService struct {
	db       *gorm.DB
	snapshot SignatureSnapshotter
	now      func() time.Time
}

func NewSignatureService(db *gorm.DB, snapshot SignatureSnapshotter) *SignatureService {
	return &SignatureService{db: db, snapshot: snapshot, now: time.Now}
}

// SignRequest describes one signing event.
type SignRequest struct {
	AssignmentID      string
	SignerID          string
	Type              string
	Level             string
	SchoolYearName    string
	SignaturePeriodID string
}

// Sign records a signature. The signer's current profile signature is copied
// into the record so later profile changes never alter a signed document.
func (s *SignatureService) Sign(ctx context.Context, req SignRequest) (*TemplateSignature, error) {
	if req.Type == "" {
		req.Type = SignatureStandard
	}
	if req.Type != SignatureStandard && req.Type != SignatureEndOfYear {
		return nil, fmt.Errorf("%w: unknown signature type %q", ErrInvalidPayload, req.Type)
	}

	var signer User
	if err := s.db.WithContext(ctx).First(&signer, "id = ?", req.SignerID).Error; err != nil {
		return nil, notFound(err, "user "+req.SignerID)
	}

	sig := &TemplateSignature{
		TemplateAssignmentID: req.AssignmentID,
		Type:                 req.Type,
		SubAdminID:           signer.ID,
		SignedAt:             s.now().UTC().Truncate(time.Second),
		SignatureURL:         signer.SignatureURL,
		Level:                req.Level,
		SchoolYearName:       req.SchoolYearName,
		SignaturePeriodID:    req.SignaturePeriodID,
	}
	sig.SignatureData = s.inline(ctx, signer.SignatureURL)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a TemplateAssignment
		if err := tx.First(&a, "id = ?", req.AssignmentID).Error; err != nil {
			return notFound(err, "assignment "+req.AssignmentID)
		}

		var count int64
		if err := tx.Model(&TemplateSignature{}).
			Where("template_assignment_id = ? AND type = ?", req.AssignmentID, req.Type).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadySigned
		}
		if err := tx.Create(sig).Error; err != nil {
			return fmt.Errorf("failed to create signature: %w", err)
		}

		data, err := a.DecodeData()
		if err != nil {
			return fmt.Errorf("failed to decode assignment data: %w", err)
		}
		data.Signatures = append(data.Signatures, SignatureRecord{
			Type:              sig.Type,
			SubAdminID:        sig.SubAdminID,
			SignedAt:          sig.SignedAt,
			Level:             sig.Level,
			SchoolYearName:    sig.SchoolYearName,
			SignaturePeriodID: sig.SignaturePeriodID,
		})
		return saveData(tx, &a, data)
	})
	if err != nil {
		return nil, err
	}

	logging.InfoWithComponent(logging.ComponentSignatures, "Assignment signed",
		"assignment_id", req.AssignmentID, "type", req.Type, "signer_id", signer.ID, "inline", sig.SignatureData != "")
	return sig, nil
}

func (s *SignatureService) inline(ctx context.Context, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "data:") {
		return ref
	}
	if s.snapshot == nil {
		return ""
	}
	uri, err := s.snapshot.DataURI(ctx, ref)
	if err != nil {
		logging.WarnWithComponent(logging.ComponentSignatures, "Could not snapshot signature, keeping URL only", "ref", ref, "error", err)
		return ""
	}
	return uri
}

// Unsign removes the signature of the given type and its mirror record.
func (s *SignatureService) Unsign(ctx context.Context, assignmentID, sigType string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sig TemplateSignature
		err := tx.Where("template_assignment_id = ? AND type = ?", assignmentID, sigType).First(&sig).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotSigned
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&sig).Error; err != nil {
			return err
		}

		var a TemplateAssignment
		if err := tx.First(&a, "id = ?", assignmentID).Error; err != nil {
			return notFound(err, "assignment "+assignmentID)
		}
		data, err := a.DecodeData()
		if err != nil {
			return err
		}
		kept := data.Signatures[:0]
		for _, rec := range data.Signatures {
			if rec.Type == sig.Type && rec.SignedAt.Equal(sig.SignedAt) {
				continue
			}
			kept = append(kept, rec)
		}
		data.Signatures = kept
		return saveData(tx, &a, data)
	})
	if err != nil {
		return err
	}
	logging.InfoWithComponent(logging.ComponentSignatures, "Assignment unsigned", "assignment_id", assignmentID, "type", sigType)
	return nil
}

// ListForAssignment returns the assignment's signatures, oldest first.
func (s *SignatureService) ListForAssignment(ctx context.Context, assignmentID string) ([]TemplateSignature, error) {
	var list []TemplateSignature
	err := s.db.WithContext(ctx).Where("template_assignment_id = ?", assignmentID).Order("signed_at ASC").Find(&list).Error
	return list, err
}
