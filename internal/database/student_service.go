package database

import (
	"fmt"

	"gorm.io/gorm"
)

// StudentService is the minimal roster access rendering needs: students,
// their class and the staff who sign documents.
type StudentService struct {
	db *gorm.DB
}

func NewStudentService(db *gorm.DB) *StudentService {
	return &StudentService{db: db}
}

func (s *StudentService) CreateClass(class *Class) error {
	return s.db.Create(class).Error
}

func (s *StudentService) GetClassByName(name string) (*Class, error) {
	var class Class
	if err := s.db.First(&class, "name = ?", name).Error; err != nil {
		return nil, notFound(err, "class "+name)
	}
	return &class, nil
}

func (s *StudentService) CreateStudent(student *Student) error {
	return s.db.Create(student).Error
}

// GetStudent loads a student with its class.
func (s *StudentService) GetStudent(id string) (*Student, error) {
	var student Student
	if err := s.db.Preload("Class").First(&student, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "student "+id)
	}
	return &student, nil
}

// DeleteStudent removes a student together with its assignments and their
// signatures.
func (s *StudentService) DeleteStudent(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&TemplateAssignment{}).Select("id").Where("student_id = ?", id)
		if err := tx.Where("template_assignment_id IN (?)", sub).Delete(&TemplateSignature{}).Error; err != nil {
			return fmt.Errorf("failed to delete signatures: %w", err)
		}
		if err := tx.Where("student_id = ?", id).Delete(&TemplateAssignment{}).Error; err != nil {
			return fmt.Errorf("failed to delete assignments: %w", err)
		}
		res := tx.Delete(&Student{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("student %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (s *StudentService) CreateUser(user *User) error {
	return s.db.Create(user).Error
}

func (s *StudentService) GetUser(id string) (*User, error) {
	var user User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user "+id)
	}
	return &user, nil
}

// UpdateUserSignature changes a signer's live profile signature. Documents
// already signed keep the snapshot taken at signing time.
func (s *StudentService) UpdateUserSignature(id, signatureURL string) error {
	res := s.db.Model(&User{}).Where("id = ?", id).Update("signature_url", signatureURL)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}
