package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gilkh/livret/internal/logging"
)

// PromotionService moves students to their next level
type PromotionService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPromotionService(db *gorm.DB) *PromotionService {
	return &PromotionService{db: db, now: time.Now}
}

// PromoteRequest describes a level change.
type PromoteRequest struct {
	StudentID string `json:"-"`
	ToLevel   string `json:"toLevel" binding:"required"`
	Year      string `json:"year" binding:"required"`
	ClassID   string `json:"classId,omitempty"`
}

// Promote changes the student's level (and class when given) and records the
// promotion on every assignment of the student, all in one transaction.
func (s *PromotionService) Promote(ctx context.Context, req PromoteRequest) (*PromotionRecord, error) {
	var record PromotionRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var student Student
		if err := tx.Preload("Class").First(&student, "id = ?", req.StudentID).Error; err != nil {
			return notFound(err, "student "+req.StudentID)
		}

		now := s.now().UTC().Truncate(time.Second)
		record = PromotionRecord{
			From: student.EffectiveLevel(),
			To:   req.ToLevel,
			Year: req.Year,
			Date: &now,
		}
		if student.Class != nil {
			record.Class = student.Class.Name
		}

		updates := map[string]any{"level": req.ToLevel}
		if req.ClassID != "" {
			var class Class
			if err := tx.First(&class, "id = ?", req.ClassID).Error; err != nil {
				return notFound(err, "class "+req.ClassID)
			}
			updates["class_id"] = class.ID
		}
		if err := tx.Model(&Student{}).Where("id = ?", student.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update student: %w", err)
		}

		var assignments []TemplateAssignment
		if err := tx.Where("student_id = ?", student.ID).Find(&assignments).Error; err != nil {
			return err
		}
		for i := range assignments {
			data, err := assignments[i].DecodeData()
			if err != nil {
				return fmt.Errorf("failed to decode assignment %s: %w", assignments[i].ID, err)
			}
			data.Promotions = append(data.Promotions, record)
			if err := saveData(tx, &assignments[i], data); err != nil {
				return fmt.Errorf("failed to record promotion on %s: %w", assignments[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentPromotions, "Promotion rolled back", "student_id", req.StudentID, "error", err)
		return nil, err
	}

	logging.InfoWithComponent(logging.ComponentPromotions, "Student promoted",
		"student_id", req.StudentID, "from", record.From, "to", record.To, "year", record.Year)
	return &record, nil
}
