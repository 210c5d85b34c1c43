package database

import (
	"context"

	"gorm.io/gorm"

	"github.com/gilkh/livret/internal/layout"
)

// Store is the read side used by the export pipeline.
type Store struct {
	db        *gorm.DB
	templates *TemplateService
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, templates: NewTemplateService(db)}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Template(ctx context.Context, id string) (*Template, error) {
	var tpl Template
	if err := s.db.WithContext(ctx).First(&tpl, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "template "+id)
	}
	return &tpl, nil
}

func (s *Store) TemplateLayout(ctx context.Context, tpl *Template, version int) (*layout.Layout, error) {
	return s.templates.LayoutFor(tpl, version)
}

func (s *Store) Student(ctx context.Context, id string) (*Student, error) {
	var student Student
	if err := s.db.WithContext(ctx).Preload("Class").First(&student, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "student "+id)
	}
	return &student, nil
}

func (s *Store) Assignment(ctx context.Context, id string) (*TemplateAssignment, error) {
	var a TemplateAssignment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "assignment "+id)
	}
	return &a, nil
}

func (s *Store) AssignmentForStudent(ctx context.Context, studentID, templateID string) (*TemplateAssignment, error) {
	var a TemplateAssignment
	err := s.db.WithContext(ctx).Where("student_id = ? AND template_id = ?", studentID, templateID).
		Order("created_at DESC").First(&a).Error
	if err != nil {
		return nil, notFound(err, "assignment for student "+studentID)
	}
	return &a, nil
}

func (s *Store) Signatures(ctx context.Context, assignmentID string) ([]TemplateSignature, error) {
	var list []TemplateSignature
	err := s.db.WithContext(ctx).Where("template_assignment_id = ?", assignmentID).Order("signed_at ASC").Find(&list).Error
	return list, err
}

func (s *Store) Users(ctx context.Context, ids []string) (map[string]User, error) {
	out := make(map[string]User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}
