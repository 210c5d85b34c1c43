package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Signature types. A TemplateAssignment holds at most one signature of each.
const (
	SignatureStandard  = "standard"
	SignatureEndOfYear = "end_of_year"
)

// Template is an administrator-authored report-card layout.
type Template struct {
	ID                 string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name               string         `gorm:"not null" json:"name"`
	Pages              datatypes.JSON `json:"pages"`
	Variables          datatypes.JSON `json:"variables,omitempty"`
	Watermark          string         `json:"watermark,omitempty"`
	CurrentVersion     int            `gorm:"not null;default:1" json:"currentVersion"`
	ExportPasswordHash string         `json:"-"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`

	Versions []TemplateVersion `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"versionHistory,omitempty"`
}

func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CurrentVersion == 0 {
		t.CurrentVersion = 1
	}
	return nil
}

// HasExportPassword reports whether unauthenticated export is password gated.
func (t *Template) HasExportPassword() bool {
	return t.ExportPasswordHash != ""
}

// TemplateVersion is a snapshot of a template layout taken before an edit.
type TemplateVersion struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	TemplateID string         `gorm:"type:varchar(36);not null;index:idx_template_version,unique" json:"templateId"`
	Version    int            `gorm:"not null;index:idx_template_version,unique" json:"version"`
	Pages      datatypes.JSON `json:"pages"`
	Variables  datatypes.JSON `json:"variables,omitempty"`
	Watermark  string         `json:"watermark,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func (v *TemplateVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// Class is a school class; Level drives block visibility.
type Class struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name       string    `gorm:"not null" json:"name"`
	Level      string    `gorm:"index" json:"level"`
	SchoolYear string    `json:"schoolYear,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (c *Class) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type Student struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	FirstName   string    `gorm:"not null" json:"firstName"`
	LastName    string    `gorm:"not null;index" json:"lastName"`
	DateOfBirth time.Time `json:"dateOfBirth"`
	Level       string    `json:"level,omitempty"`
	ClassID     *string   `gorm:"type:varchar(36);index" json:"classId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Class       *Class               `gorm:"foreignKey:ClassID" json:"class,omitempty"`
	Assignments []TemplateAssignment `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (s *Student) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// EffectiveLevel is the class level, falling back to the student's own level.
func (s *Student) EffectiveLevel() string {
	if s.Class != nil && s.Class.Level != "" {
		return s.Class.Level
	}
	return s.Level
}

// User is a staff member who can sign assignments.
type User struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	DisplayName  string    `gorm:"not null" json:"displayName"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Role         string    `gorm:"default:'SUBADMIN'" json:"role"`
	SignatureURL string    `json:"signatureUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// TemplateAssignment binds one student to one template and stores the
// answers collected for that instance.
type TemplateAssignment struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	StudentID       string         `gorm:"type:varchar(36);not null;index" json:"studentId"`
	TemplateID      string         `gorm:"type:varchar(36);not null;index" json:"templateId"`
	TemplateVersion int            `json:"templateVersion,omitempty"`
	Data            datatypes.JSON `json:"data"`
	IsCompleted     bool           `gorm:"default:false" json:"isCompleted"`
	IsCompletedSem1 bool           `gorm:"default:false" json:"isCompletedSem1"`
	IsCompletedSem2 bool           `gorm:"default:false" json:"isCompletedSem2"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (a *TemplateAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// DecodeData parses the assignment's answers.
func (a *TemplateAssignment) DecodeData() (*AssignmentData, error) {
	return ParseAssignmentData(a.Data)
}

// TemplateSignature records one signing event for an assignment.
type TemplateSignature struct {
	ID                   string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TemplateAssignmentID string    `gorm:"type:varchar(36);not null;index:idx_signature_assignment_type" json:"templateAssignmentId"`
	Type                 string    `gorm:"not null;default:'standard';index:idx_signature_assignment_type" json:"type"`
	SubAdminID           string    `gorm:"type:varchar(36);index" json:"subAdminId"`
	SignedAt             time.Time `gorm:"not null" json:"signedAt"`
	SignatureURL         string    `json:"signatureUrl,omitempty"`
	SignatureData        string    `gorm:"type:text" json:"signatureData,omitempty"`
	Level                string    `json:"level,omitempty"`
	SchoolYearName       string    `json:"schoolYearName,omitempty"`
	SignaturePeriodID    string    `json:"signaturePeriodId,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

func (s *TemplateSignature) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// GetAllModels returns every model managed by migrations.
func GetAllModels() []interface{} {
	return []interface{}{
		&Template{},
		&TemplateVersion{},
		&Class{},
		&Student{},
		&User{},
		&TemplateAssignment{},
		&TemplateSignature{},
	}
}
