// Package export loads everything one report card needs and hands it to a
// rendering back end, one document at a time or as a ZIP batch.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/gilkh/livret/internal/database"
	"github.com/gilkh/livret/internal/layout"
	"github.com/gilkh/livret/internal/logging"
	"github.com/gilkh/livret/internal/rendering"
	"github.com/gilkh/livret/internal/resolver"
)

var (
	ErrTemplateNotFound   = errors.New("template not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrMissingTemplateID  = errors.New("templateId is required")
	ErrEmptyDocument      = rendering.ErrEmptyDocument
	ErrBackendUnavailable = errors.New("render back end unavailable")
)

// Source is the read side the exporter needs. database.Store and
// mongostore.Store implement it; missing records wrap database.ErrNotFound.
type Source interface {
	Template(ctx context.Context, id string) (*database.Template, error)
	TemplateLayout(ctx context.Context, tpl *database.Template, version int) (*layout.Layout, error)
	Student(ctx context.Context, id string) (*database.Student, error)
	Assignment(ctx context.Context, id string) (*database.TemplateAssignment, error)
	AssignmentForStudent(ctx context.Context, studentID, templateID string) (*database.TemplateAssignment, error)
	Signatures(ctx context.Context, assignmentID string) ([]database.TemplateSignature, error)
	Users(ctx context.Context, ids []string) (map[string]database.User, error)
}

// Options configures a Service.
type Options struct {
	LevelOrder []string
	Metrics    *rendering.RenderMetrics
}

// Service renders assignments with a default back end and optional others
// selectable by name.
type Service struct {
	source     Source
	backends   map[string]rendering.Backend
	def        string
	levelOrder []string
	metrics    *rendering.RenderMetrics
}

func NewService(source Source, def rendering.Backend, opts Options, others ...rendering.Backend) *Service {
	s := &Service{
		source:     source,
		backends:   map[string]rendering.Backend{def.Name(): def},
		def:        def.Name(),
		levelOrder: opts.LevelOrder,
		metrics:    opts.Metrics,
	}
	for _, b := range others {
		if b != nil {
			s.backends[b.Name()] = b
		}
	}
	if s.metrics == nil {
		s.metrics = &rendering.RenderMetrics{}
	}
	return s
}

// Backend returns the named back end, or the default for "".
func (s *Service) Backend(name string) (rendering.Backend, error) {
	if name == "" {
		name = s.def
	}
	b, ok := s.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configured", ErrBackendUnavailable, name)
	}
	return b, nil
}

// Job is a loaded render job plus what the caller needs to name the file.
type Job struct {
	Render   *rendering.RenderJob
	Student  *database.Student
	FileName string
}

// Document is one rendered PDF.
type Document struct {
	AssignmentID string
	FileName     string
	Data         []byte
}

func mapNotFound(err error, sentinel error) error {
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	return err
}

// LoadJob gathers the template (honouring the assignment's version pin),
// student, class, assignment data, signatures and signer profiles.
func (s *Service) LoadJob(ctx context.Context, assignmentID string) (*Job, error) {
	a, err := s.source.Assignment(ctx, assignmentID)
	if err != nil {
		return nil, mapNotFound(err, ErrAssignmentNotFound)
	}
	tpl, err := s.source.Template(ctx, a.TemplateID)
	if err != nil {
		return nil, mapNotFound(err, ErrTemplateNotFound)
	}
	l, err := s.source.TemplateLayout(ctx, tpl, a.TemplateVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load layout of template %s: %w", tpl.ID, err)
	}
	student, err := s.source.Student(ctx, a.StudentID)
	if err != nil {
		return nil, mapNotFound(err, ErrStudentNotFound)
	}
	data, err := database.ParseAssignmentData(a.Data)
	if err != nil {
		logging.WarnWithComponent(logging.ComponentExport, "Assignment data unreadable, rendering without it", "assignment_id", a.ID, "error", err)
		data = database.NewAssignmentData()
	}
	signatures, err := s.source.Signatures(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load signatures: %w", err)
	}

	var signerIDs []string
	seen := map[string]bool{}
	for _, sig := range signatures {
		if sig.SubAdminID != "" && !seen[sig.SubAdminID] {
			seen[sig.SubAdminID] = true
			signerIDs = append(signerIDs, sig.SubAdminID)
		}
	}
	signers, err := s.source.Users(ctx, signerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load signers: %w", err)
	}

	r := resolver.New(resolver.Input{
		Student:    student,
		Assignment: a,
		Data:       data,
		Signatures: signatures,
		Signers:    signers,
		Variables:  l.Variables,
		LevelOrder: s.levelOrder,
	})

	return &Job{
		Render: &rendering.RenderJob{
			AssignmentID: a.ID,
			Layout:       l,
			Resolver:     r,
			UpdatedAt:    latest(a.UpdatedAt, tpl.UpdatedAt, student.UpdatedAt),
		},
		Student:  student,
		FileName: FileName(student),
	}, nil
}

func latest(times ...time.Time) time.Time {
	var out time.Time
	for _, t := range times {
		if t.After(out) {
			out = t
		}
	}
	return out.UTC()
}

// RenderAssignment renders one assignment with the named back end.
func (s *Service) RenderAssignment(ctx context.Context, assignmentID, backendName string) (*Document, error) {
	backend, err := s.Backend(backendName)
	if err != nil {
		return nil, err
	}
	job, err := s.LoadJob(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, backend, job)
}

func (s *Service) render(ctx context.Context, backend rendering.Backend, job *Job) (*Document, error) {
	done := s.metrics.Track()
	start := time.Now()
	data, err := backend.Render(ctx, job.Render)
	if err == nil && len(data) == 0 {
		err = ErrEmptyDocument
	}
	done(err)
	if err != nil {
		return nil, fmt.Errorf("failed to render assignment %s: %w", job.Render.AssignmentID, err)
	}

	logging.InfoWithComponent(logging.ComponentExport, "Rendered report card",
		"assignment_id", job.Render.AssignmentID,
		"backend", backend.Name(),
		"bytes", len(data),
		"duration", time.Since(start).Round(time.Millisecond))
	return &Document{AssignmentID: job.Render.AssignmentID, FileName: job.FileName, Data: data}, nil
}

// Template returns the template with id.
func (s *Service) Template(ctx context.Context, id string) (*database.Template, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrMissingTemplateID
	}
	tpl, err := s.source.Template(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrTemplateNotFound)
	}
	return tpl, nil
}

// TemplateForAssignment returns the template an assignment was created from.
func (s *Service) TemplateForAssignment(ctx context.Context, assignmentID string) (*database.Template, error) {
	a, err := s.source.Assignment(ctx, assignmentID)
	if err != nil {
		return nil, mapNotFound(err, ErrAssignmentNotFound)
	}
	return s.Template(ctx, a.TemplateID)
}

// RenderForStudent renders the student's assignment of templateID.
func (s *Service) RenderForStudent(ctx context.Context, studentID, templateID, backendName string) (*Document, error) {
	if strings.TrimSpace(templateID) == "" {
		return nil, ErrMissingTemplateID
	}
	if _, err := s.source.Student(ctx, studentID); err != nil {
		return nil, mapNotFound(err, ErrStudentNotFound)
	}
	if _, err := s.source.Template(ctx, templateID); err != nil {
		return nil, mapNotFound(err, ErrTemplateNotFound)
	}
	a, err := s.source.AssignmentForStudent(ctx, studentID, templateID)
	if err != nil {
		return nil, mapNotFound(err, ErrAssignmentNotFound)
	}
	return s.RenderAssignment(ctx, a.ID, backendName)
}

// FileName is carnet-<lastname>-<firstname>.pdf with characters that are
// unsafe in headers and archives replaced.
func FileName(s *database.Student) string {
	return "carnet-" + sanitize(s.LastName) + "-" + sanitize(s.FirstName) + ".pdf"
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "inconnu"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			return r
		case unicode.IsSpace(r):
			return '_'
		}
		return -1
	}, s)
}
