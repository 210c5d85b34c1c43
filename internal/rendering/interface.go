package rendering

import (
	"context"
	"errors"
	"time"

	"github.com/gilkh/livret/internal/layout"
	"github.com/gilkh/livret/internal/resolver"
)

// ErrEmptyDocument is returned when a back end produced no pages.
var ErrEmptyDocument = errors.New("rendered document is empty")

// RenderJob is everything a back end needs to produce one PDF.
type RenderJob struct {
	AssignmentID string
	Layout       *layout.Layout
	Resolver     *resolver.Resolver
	// UpdatedAt pins the PDF creation date so re-renders are byte-identical.
	UpdatedAt time.Time
}

// Backend turns a job into PDF bytes.
type Backend interface {
	Name() string

	// Render produces the PDF for job
	Render(ctx context.Context, job *RenderJob) ([]byte, error)

	// Ready reports whether the back end can render right now, starting any
	// resources it needs
	Ready(ctx context.Context) error

	// Close releases any resources used by the back end
	Close() error
}

// ImageLoader fetches the raw bytes of an image source (data: URI, http(s)
// URL, server path or gs:// object).
type ImageLoader interface {
	Load(ctx context.Context, src string) ([]byte, error)
}

// Backend names accepted by RENDER_BACKEND and the batch request.
const (
	BackendVector = "vector"
	BackendRaster = "raster"
)

// A4 in points.
const (
	A4Width  = 595.28
	A4Height = 841.89
)
