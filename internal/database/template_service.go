package database

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gilkh/livret/internal/layout"
	"github.com/gilkh/livret/internal/logging"
)

// TemplateService manages templates and their version history
type TemplateService struct {
	db *gorm.DB
}

func NewTemplateService(db *gorm.DB) *TemplateService {
	return &TemplateService{db: db}
}

// TemplateInput is the editable part of a template.
type TemplateInput struct {
	Name      string            `json:"name" binding:"required"`
	Pages     json.RawMessage   `json:"pages" binding:"required"`
	Variables map[string]string `json:"variables,omitempty"`
	Watermark string            `json:"watermark,omitempty"`
}

func (in TemplateInput) encode() (datatypes.JSON, datatypes.JSON, error) {
	if _, err := layout.Parse(in.Name, in.Pages); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var vars datatypes.JSON
	if len(in.Variables) > 0 {
		data, err := json.Marshal(in.Variables)
		if err != nil {
			return nil, nil, err
		}
		vars = data
	}
	return datatypes.JSON(in.Pages), vars, nil
}

func (s *TemplateService) Create(in TemplateInput) (*Template, error) {
	pages, vars, err := in.encode()
	if err != nil {
		return nil, err
	}
	tpl := &Template{
		Name:           in.Name,
		Pages:          pages,
		Variables:      vars,
		Watermark:      in.Watermark,
		CurrentVersion: 1,
	}
	if err := s.db.Create(tpl).Error; err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	logging.InfoWithComponent(logging.ComponentTemplates, "Template created", "template_id", tpl.ID, "name", tpl.Name)
	return tpl, nil
}

func (s *TemplateService) Get(id string) (*Template, error) {
	var tpl Template
	if err := s.db.First(&tpl, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "template "+id)
	}
	return &tpl, nil
}

// List returns every template ordered by name, without version history.
func (s *TemplateService) List() ([]Template, error) {
	var list []Template
	err := s.db.Omit("pages", "variables").Order("name ASC").Find(&list).Error
	return list, err
}

// GetWithHistory loads a template together with its version snapshots.
func (s *TemplateService) GetWithHistory(id string) (*Template, error) {
	var tpl Template
	err := s.db.Preload("Versions", func(db *gorm.DB) *gorm.DB {
		return db.Order("version ASC")
	}).First(&tpl, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "template "+id)
	}
	return &tpl, nil
}

// Update replaces the layout, snapshotting the previous one as a version and
// bumping CurrentVersion. Assignments pinned to the old version keep
// rendering the snapshot.
func (s *TemplateService) Update(id string, in TemplateInput) (*Template, error) {
	pages, vars, err := in.encode()
	if err != nil {
		return nil, err
	}

	var tpl Template
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&tpl, "id = ?", id).Error; err != nil {
			return notFound(err, "template "+id)
		}

		snapshot := TemplateVersion{
			TemplateID: tpl.ID,
			Version:    tpl.CurrentVersion,
			Pages:      tpl.Pages,
			Variables:  tpl.Variables,
			Watermark:  tpl.Watermark,
		}
		if err := tx.Create(&snapshot).Error; err != nil {
			return fmt.Errorf("failed to snapshot version %d: %w", tpl.CurrentVersion, err)
		}

		tpl.Name = in.Name
		tpl.Pages = pages
		tpl.Variables = vars
		tpl.Watermark = in.Watermark
		tpl.CurrentVersion++
		return tx.Save(&tpl).Error
	})
	if err != nil {
		return nil, err
	}

	logging.InfoWithComponent(logging.ComponentTemplates, "Template updated", "template_id", tpl.ID, "version", tpl.CurrentVersion)
	return &tpl, nil
}

// SetExportPassword stores a bcrypt hash of password; an empty password
// removes the gate.
func (s *TemplateService) SetExportPassword(id, password string) error {
	hash := ""
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash export password: %w", err)
		}
		hash = string(h)
	}
	res := s.db.Model(&Template{}).Where("id = ?", id).Update("export_password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return nil
}

// CheckExportPassword reports whether password opens the template's export gate.
func CheckExportPassword(tpl *Template, password string) bool {
	if !tpl.HasExportPassword() {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(tpl.ExportPasswordHash), []byte(password)) == nil
}

// LayoutFor decodes the layout an assignment pinned to version should use:
// the snapshot for an older version when one exists, else the current pages.
func (s *TemplateService) LayoutFor(tpl *Template, version int) (*layout.Layout, error) {
	return ResolveLayout(tpl, version, func(templateID string, version int) (*TemplateVersion, error) {
		var v TemplateVersion
		err := s.db.Where("template_id = ? AND version = ?", templateID, version).First(&v).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &v, nil
	})
}

// ResolveLayout implements the version pin rule with a pluggable snapshot lookup.
func ResolveLayout(tpl *Template, version int, lookup func(templateID string, version int) (*TemplateVersion, error)) (*layout.Layout, error) {
	pages, vars, watermark := tpl.Pages, tpl.Variables, tpl.Watermark
	if version > 0 && version < tpl.CurrentVersion {
		snapshot, err := lookup(tpl.ID, version)
		if err != nil {
			return nil, fmt.Errorf("failed to load template version %d: %w", version, err)
		}
		if snapshot != nil {
			pages, vars, watermark = snapshot.Pages, snapshot.Variables, snapshot.Watermark
		}
	}

	l, err := layout.Parse(tpl.Name, pages)
	if err != nil {
		return nil, err
	}
	l.Watermark = watermark
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &l.Variables); err != nil {
			logging.WarnWithComponent(logging.ComponentTemplates, "Ignoring malformed template variables", "template_id", tpl.ID, "error", err)
		}
	}
	return l, nil
}
