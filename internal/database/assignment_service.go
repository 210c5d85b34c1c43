package database

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gilkh/livret/internal/logging"
)

// AssignmentService manages template assignments and their answers
type AssignmentService struct {
	db *gorm.DB
}

func NewAssignmentService(db *gorm.DB) *AssignmentService {
	return &AssignmentService{db: db}
}

// Create assigns a template to a student, pinning the template's current version.
func (s *AssignmentService) Create(studentID, templateID string) (*TemplateAssignment, error) {
	var assignment TemplateAssignment
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var student Student
		if err := tx.Select("id").First(&student, "id = ?", studentID).Error; err != nil {
			return notFound(err, "student "+studentID)
		}
		var tpl Template
		if err := tx.Select("id", "current_version").First(&tpl, "id = ?", templateID).Error; err != nil {
			return notFound(err, "template "+templateID)
		}

		assignment = TemplateAssignment{
			StudentID:       studentID,
			TemplateID:      templateID,
			TemplateVersion: tpl.CurrentVersion,
			Data:            datatypes.JSON(`{}`),
		}
		return tx.Create(&assignment).Error
	})
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (s *AssignmentService) Get(id string) (*TemplateAssignment, error) {
	var a TemplateAssignment
	if err := s.db.First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "assignment "+id)
	}
	return &a, nil
}

// FindForStudent returns the most recent assignment of templateID to studentID.
func (s *AssignmentService) FindForStudent(studentID, templateID string) (*TemplateAssignment, error) {
	var a TemplateAssignment
	err := s.db.Where("student_id = ? AND template_id = ?", studentID, templateID).
		Order("created_at DESC").First(&a).Error
	if err != nil {
		return nil, notFound(err, "assignment for student "+studentID)
	}
	return &a, nil
}

func (s *AssignmentService) ListForStudent(studentID string) ([]TemplateAssignment, error) {
	var list []TemplateAssignment
	err := s.db.Where("student_id = ?", studentID).Order("created_at ASC").Find(&list).Error
	return list, err
}

// PatchData merges answer keys into the assignment data.
func (s *AssignmentService) PatchData(id string, patch map[string]json.RawMessage) (*TemplateAssignment, error) {
	for key := range patch {
		if key == "signatures" {
			return nil, fmt.Errorf("%w: signatures are managed by signing", ErrInvalidPayload)
		}
	}

	var a TemplateAssignment
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&a, "id = ?", id).Error; err != nil {
			return notFound(err, "assignment "+id)
		}
		data, err := a.DecodeData()
		if err != nil {
			return fmt.Errorf("failed to decode assignment data: %w", err)
		}
		if err := data.Apply(patch); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return saveData(tx, &a, data)
	})
	if err != nil {
		return nil, err
	}

	logging.DebugWithComponent(logging.ComponentAPI, "Assignment data updated", "assignment_id", id, "keys", len(patch))
	return &a, nil
}

// SetCompletion updates the completion flags.
func (s *AssignmentService) SetCompletion(id string, completed, sem1, sem2 bool) error {
	res := s.db.Model(&TemplateAssignment{}).Where("id = ?", id).Updates(map[string]any{
		"is_completed":      completed,
		"is_completed_sem1": sem1,
		"is_completed_sem2": sem2,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	return nil
}

func saveData(tx *gorm.DB, a *TemplateAssignment, data *AssignmentData) error {
	encoded, err := data.Encode()
	if err != nil {
		return err
	}
	a.Data = datatypes.JSON(encoded)
	return tx.Model(a).Update("data", a.Data).Error
}
