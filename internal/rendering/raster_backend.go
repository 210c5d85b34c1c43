package rendering

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/jung-kurt/gofpdf"

	"github.com/gilkh/livret/internal/imageprocessing"
	"github.com/gilkh/livret/internal/layout"
	"github.com/gilkh/livret/internal/logging"
)

// Raster capture modes.
const (
	RasterScreenshot = "screenshot"
	RasterPrint      = "print"
)

const readySelector = "body[data-render-complete='true']"

// RasterOptions configures the browser back end.
type RasterOptions struct {
	Pool *BrowserPool
	// PageURL returns the signed URL of the render page for an assignment.
	PageURL      func(assignmentID string) (string, error)
	Mode         string
	Format       string // jpeg or png
	Quality      int
	Scale        float64
	ReadyTimeout time.Duration
}

// RasterBackend renders the HTML page of an assignment in a headless tab
// and captures it either as page screenshots or with the print engine.
type RasterBackend struct {
	opts RasterOptions
}

func NewRasterBackend(opts RasterOptions) *RasterBackend {
	if opts.Mode != RasterPrint {
		opts.Mode = RasterScreenshot
	}
	if opts.Format != "png" {
		opts.Format = "jpeg"
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 92
	}
	if opts.Scale <= 0 {
		opts.Scale = 2
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 15 * time.Second
	}
	return &RasterBackend{opts: opts}
}

func (b *RasterBackend) Name() string { return BackendRaster }

func (b *RasterBackend) Ready(ctx context.Context) error {
	if b.opts.Pool == nil {
		return errors.New("raster back end has no browser pool")
	}
	return b.opts.Pool.Ready(ctx)
}

// Close is a no-op: the pool is shared and closed by its owner.
func (b *RasterBackend) Close() error { return nil }

func (b *RasterBackend) Render(ctx context.Context, job *RenderJob) ([]byte, error) {
	url, err := b.opts.PageURL(job.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to build render page url: %w", err)
	}

	tab, err := b.opts.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer tab.Release()
	tctx := tab.Context()

	start := time.Now()
	if err := chromedp.Run(tctx,
		chromedp.EmulateViewport(int64(layout.DesignWidth), int64(layout.DesignHeight), chromedp.EmulateScale(b.opts.Scale)),
		chromedp.Navigate(url),
	); err != nil {
		return nil, fmt.Errorf("failed to load render page: %w", err)
	}
	b.waitReady(ctx, tctx, job.AssignmentID)

	var pages int
	if err := chromedp.Run(tctx, chromedp.Evaluate(`document.querySelectorAll('.page').length`, &pages)); err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	if pages == 0 {
		return nil, ErrEmptyDocument
	}

	var out []byte
	if b.opts.Mode == RasterPrint {
		out, err = b.printPDF(tctx)
	} else {
		out, err = b.screenshots(tctx, pages, job.UpdatedAt)
	}
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyDocument
	}

	logging.DebugWithComponent(logging.ComponentRenderer, "Raster render complete",
		"assignment_id", job.AssignmentID, "pages", pages, "mode", b.opts.Mode, "duration", time.Since(start).Round(time.Millisecond))
	return out, nil
}

// waitReady blocks until the page signals completion. A timeout is logged
// and rendering proceeds with whatever has loaded.
func (b *RasterBackend) waitReady(ctx, tctx context.Context, assignmentID string) {
	wctx, cancel := context.WithTimeout(tctx, b.opts.ReadyTimeout)
	defer cancel()
	if err := chromedp.Run(wctx, chromedp.WaitReady(readySelector, chromedp.ByQuery)); err != nil && ctx.Err() == nil {
		logging.WarnWithComponent(logging.ComponentRenderer, "Render page not ready in time, capturing anyway",
			"assignment_id", assignmentID, "timeout", b.opts.ReadyTimeout, "error", err)
	}
}

func (b *RasterBackend) screenshots(tctx context.Context, pages int, created time.Time) ([]byte, error) {
	format := page.CaptureScreenshotFormatJpeg
	imageType := imageprocessing.TypeJPG
	if b.opts.Format == "png" {
		format = page.CaptureScreenshotFormatPng
		imageType = imageprocessing.TypePNG
	}

	shots := make([][]byte, 0, pages)
	for i := 0; i < pages; i++ {
		var shot []byte
		err := chromedp.Run(tctx, chromedp.ActionFunc(func(ctx context.Context) error {
			capture := page.CaptureScreenshot().
				WithFormat(format).
				WithCaptureBeyondViewport(true).
				WithClip(&page.Viewport{
					X:      0,
					Y:      float64(i) * layout.DesignHeight,
					Width:  layout.DesignWidth,
					Height: layout.DesignHeight,
					Scale:  1,
				})
			if format == page.CaptureScreenshotFormatJpeg {
				capture = capture.WithQuality(int64(b.opts.Quality))
			}
			var err error
			shot, err = capture.Do(ctx)
			return err
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to capture page %d: %w", i+1, err)
		}
		shots = append(shots, shot)
	}
	return AssemblePages(shots, imageType, created)
}

func (b *RasterBackend) printPDF(tctx context.Context) ([]byte, error) {
	var out []byte
	err := chromedp.Run(tctx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPreferCSSPageSize(true).
			WithPaperWidth(layout.DesignWidth / 96).
			WithPaperHeight(layout.DesignHeight / 96).
			WithMarginTop(0).
			WithMarginBottom(0).
			WithMarginLeft(0).
			WithMarginRight(0).
			Do(ctx)
		out = data
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to print page: %w", err)
	}
	return out, nil
}

// AssemblePages places one full-bleed image per A4 page.
func AssemblePages(images [][]byte, imageType string, created time.Time) ([]byte, error) {
	if len(images) == 0 {
		return nil, ErrEmptyDocument
	}
	if created.IsZero() {
		created = epoch
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: A4Width, Ht: A4Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(created)
	pdf.SetModificationDate(created)
	pdf.SetCatalogSort(true)

	opts := gofpdf.ImageOptions{ImageType: imageType}
	for i, img := range images {
		name := fmt.Sprintf("page%d", i)
		pdf.AddPage()
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img))
		pdf.ImageOptions(name, 0, 0, A4Width, A4Height, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to assemble pages: %w", err)
	}
	return buf.Bytes(), nil
}
