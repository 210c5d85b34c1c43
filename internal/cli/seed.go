package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/gilkh/livret/internal/config"
	"github.com/gilkh/livret/internal/database"
	"github.com/gilkh/livret/internal/logging"
)

// Fixtures is the YAML document accepted by the seed command. Students,
// templates and assignments reference each other by name.
type Fixtures struct {
	Classes     []ClassFixture      `yaml:"classes"`
	Users       []UserFixture       `yaml:"users"`
	Students    []StudentFixture    `yaml:"students"`
	Templates   []TemplateFixture   `yaml:"templates"`
	Assignments []AssignmentFixture `yaml:"assignments"`
}

type ClassFixture struct {
	Name       string `yaml:"name"`
	Level      string `yaml:"level"`
	SchoolYear string `yaml:"schoolYear"`
}

type UserFixture struct {
	DisplayName  string `yaml:"displayName"`
	Email        string `yaml:"email"`
	Role         string `yaml:"role"`
	SignatureURL string `yaml:"signatureUrl"`
}

type StudentFixture struct {
	FirstName   string `yaml:"firstName"`
	LastName    string `yaml:"lastName"`
	DateOfBirth string `yaml:"dateOfBirth"` // YYYY-MM-DD
	Level       string `yaml:"level"`
	Class       string `yaml:"class"`
}

type TemplateFixture struct {
	Name string `yaml:"name"`
	// File is a JSON layout relative to the fixture file; Pages is an
	// inline alternative.
	File           string            `yaml:"file"`
	Pages          any               `yaml:"pages"`
	Variables      map[string]string `yaml:"variables"`
	Watermark      string            `yaml:"watermark"`
	ExportPassword string            `yaml:"exportPassword"`
}

type AssignmentFixture struct {
	Student   string         `yaml:"student"` // "First Last"
	Template  string         `yaml:"template"`
	Data      map[string]any `yaml:"data"`
	Completed bool           `yaml:"completed"`
}

// SeedResult counts what was created.
type SeedResult struct {
	Classes     int
	Users       int
	Students    int
	Templates   int
	Assignments int
}

// LoadFixtures decodes path.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &f, nil
}

// Seed inserts f into db. baseDir resolves template files. Classes are
// reused by name; everything else is created.
func Seed(db *gorm.DB, baseDir string, f *Fixtures) (*SeedResult, error) {
	res := &SeedResult{}
	people := database.NewStudentService(db)
	templates := database.NewTemplateService(db)
	assignments := database.NewAssignmentService(db)

	classes := map[string]string{}
	for _, c := range f.Classes {
		existing, err := people.GetClassByName(c.Name)
		switch {
		case err == nil:
			classes[c.Name] = existing.ID
			continue
		case !errors.Is(err, database.ErrNotFound):
			return res, err
		}
		class := &database.Class{Name: c.Name, Level: c.Level, SchoolYear: c.SchoolYear}
		if err := people.CreateClass(class); err != nil {
			return res, fmt.Errorf("class %s: %w", c.Name, err)
		}
		classes[c.Name] = class.ID
		res.Classes++
	}

	for _, u := range f.Users {
		user := &database.User{DisplayName: u.DisplayName, Email: u.Email, Role: u.Role, SignatureURL: u.SignatureURL}
		if user.Role == "" {
			user.Role = "SUBADMIN"
		}
		if err := people.CreateUser(user); err != nil {
			return res, fmt.Errorf("user %s: %w", u.Email, err)
		}
		res.Users++
	}

	students := map[string]string{}
	for _, s := range f.Students {
		student := &database.Student{FirstName: s.FirstName, LastName: s.LastName, Level: s.Level}
		if s.DateOfBirth != "" {
			dob, err := time.Parse(time.DateOnly, s.DateOfBirth)
			if err != nil {
				return res, fmt.Errorf("student %s %s: invalid dateOfBirth: %w", s.FirstName, s.LastName, err)
			}
			student.DateOfBirth = dob
		}
		if s.Class != "" {
			id, ok := classes[s.Class]
			if !ok {
				return res, fmt.Errorf("student %s %s: unknown class %q", s.FirstName, s.LastName, s.Class)
			}
			student.ClassID = &id
		}
		if err := people.CreateStudent(student); err != nil {
			return res, fmt.Errorf("student %s %s: %w", s.FirstName, s.LastName, err)
		}
		students[s.FirstName+" "+s.LastName] = student.ID
		res.Students++
	}

	tplIDs := map[string]string{}
	for _, t := range f.Templates {
		pages, err := templatePages(baseDir, t.File, t.Pages)
		if err != nil {
			return res, fmt.Errorf("template %s: %w", t.Name, err)
		}
		tpl, err := templates.Create(database.TemplateInput{
			Name:      t.Name,
			Pages:     pages,
			Variables: t.Variables,
			Watermark: t.Watermark,
		})
		if err != nil {
			return res, fmt.Errorf("template %s: %w", t.Name, err)
		}
		if t.ExportPassword != "" {
			if err := templates.SetExportPassword(tpl.ID, t.ExportPassword); err != nil {
				return res, err
			}
		}
		tplIDs[t.Name] = tpl.ID
		res.Templates++
	}

	for _, as := range f.Assignments {
		studentID, ok := students[as.Student]
		if !ok {
			return res, fmt.Errorf("assignment: unknown student %q", as.Student)
		}
		templateID, ok := tplIDs[as.Template]
		if !ok {
			return res, fmt.Errorf("assignment: unknown template %q", as.Template)
		}
		a, err := assignments.Create(studentID, templateID)
		if err != nil {
			return res, err
		}
		if len(as.Data) > 0 {
			patch := make(map[string]json.RawMessage, len(as.Data))
			for k, v := range as.Data {
				raw, err := json.Marshal(v)
				if err != nil {
					return res, fmt.Errorf("assignment %s/%s field %s: %w", as.Student, as.Template, k, err)
				}
				patch[k] = raw
			}
			if _, err := assignments.PatchData(a.ID, patch); err != nil {
				return res, err
			}
		}
		if as.Completed {
			if err := assignments.SetCompletion(a.ID, true, true, true); err != nil {
				return res, err
			}
		}
		res.Assignments++
	}

	logging.InfoWithComponent(logging.ComponentCLI, "Fixtures seeded",
		"classes", res.Classes, "users", res.Users, "students", res.Students,
		"templates", res.Templates, "assignments", res.Assignments)
	return res, nil
}

func templatePages(baseDir, file string, inline any) (json.RawMessage, error) {
	switch {
	case file != "" && inline != nil:
		return nil, errors.New("set either file or pages, not both")
	case file != "":
		if !filepath.IsAbs(file) {
			file = filepath.Join(baseDir, file)
		}
		return os.ReadFile(file)
	case inline != nil:
		return json.Marshal(inline)
	default:
		return nil, errors.New("no pages")
	}
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load classes, students, templates and assignments from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.LoadServerSettings().DBType == dbTypeMongo {
				return errMongoReadOnly
			}
			fixtures, err := LoadFixtures(file)
			if err != nil {
				return err
			}
			if err := database.Initialize(); err != nil {
				return err
			}
			defer database.Close()

			res, err := Seed(database.GetDB(), filepath.Dir(file), fixtures)
			if err != nil {
				return err
			}
			return writeSeedResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "fixtures.yaml", "fixture file")
	return cmd
}
