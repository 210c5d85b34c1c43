package database

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/gilkh/livret/internal/logging"
)

// RunMigrations runs any pending database migrations using gormigrate
func RunMigrations(db *gorm.DB) error {
	logging.InfoWithComponent(logging.ComponentDatabase, "Running database migrations")

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202509010000_initial_schema",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(
					&Template{},
					&Class{},
					&Student{},
					&User{},
					&TemplateAssignment{},
					&TemplateSignature{},
				)
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("template_signatures", "template_assignments", "users", "students", "classes", "templates")
			},
		},
		{
			ID: "202509150000_template_versions",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&TemplateVersion{}); err != nil {
					return err
				}
				// Assignments created before versioning render the layout
				// that was current when versioning was introduced.
				return tx.Model(&TemplateAssignment{}).
					Where("template_version IS NULL OR template_version = 0").
					Update("template_version", 1).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("template_versions")
			},
		},
		{
			ID: "202510010000_signature_snapshot_columns",
			Migrate: func(tx *gorm.DB) error {
				for _, column := range []string{"SignatureData", "SchoolYearName", "SignaturePeriodID"} {
					if tx.Migrator().HasColumn(&TemplateSignature{}, column) {
						continue
					}
					if err := tx.Migrator().AddColumn(&TemplateSignature{}, column); err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return nil
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return err
	}

	logging.InfoWithComponent(logging.ComponentDatabase, "Database migrations completed")
	return nil
}
