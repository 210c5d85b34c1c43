package rendering

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/gilkh/livret/internal/imageprocessing"
	"github.com/gilkh/livret/internal/logging"
)

// VectorOptions configures the gofpdf back end.
type VectorOptions struct {
	Images          ImageLoader
	QRServiceURL    string
	QRLocalFallback bool
	Icons           IconURLs
	// FontPath and FontBoldPath point at TTF files used for full Unicode
	// text. Without them the core Helvetica font (cp1252) is used.
	FontPath     string
	FontBoldPath string
	Processing   imageprocessing.ProcessingOptions
}

// VectorBackend executes draw commands directly into a PDF with gofpdf.
type VectorBackend struct {
	opts   VectorOptions
	interp *Interpreter
}

func NewVectorBackend(opts VectorOptions) *VectorBackend {
	if opts.Processing.MaxPixels == 0 {
		opts.Processing = imageprocessing.DefaultProcessingOptions()
	}
	return &VectorBackend{
		opts: opts,
		interp: NewInterpreter(InterpreterOptions{
			Width:        A4Width,
			Height:       A4Height,
			QRServiceURL: opts.QRServiceURL,
			Icons:        opts.Icons,
		}),
	}
}

func (b *VectorBackend) Name() string { return BackendVector }

func (b *VectorBackend) Ready(ctx context.Context) error { return nil }

func (b *VectorBackend) Close() error { return nil }

func (b *VectorBackend) Render(ctx context.Context, job *RenderJob) ([]byte, error) {
	doc := b.interp.Interpret(job.Layout, job.Resolver)
	if len(doc.Pages) == 0 {
		return nil, ErrEmptyDocument
	}
	return b.Write(ctx, doc, job.UpdatedAt)
}

// epoch stands in for a missing update time so output stays reproducible.
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Write executes doc into PDF bytes. created is embedded as both creation
// and modification date; together with catalog sorting it makes output a
// pure function of doc.
func (b *VectorBackend) Write(ctx context.Context, doc *Document, created time.Time) ([]byte, error) {
	if created.IsZero() {
		created = epoch
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: doc.Width, Ht: doc.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCellMargin(0)
	pdf.SetCreationDate(created)
	pdf.SetModificationDate(created)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("livret", true)

	w := &pdfWriter{
		pdf:    pdf,
		ctx:    ctx,
		opts:   b.opts,
		images: make(map[string]*registeredImage),
	}
	w.setupFonts()

	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pdf.AddPage()
		if page.Background.Visible() {
			w.withAlpha(page.Background.A, func() {
				setFill(pdf, page.Background)
				pdf.Rect(0, 0, doc.Width, doc.Height, "F")
			})
		}
		for _, cmd := range page.Commands {
			w.draw(cmd)
		}
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("failed to draw page %d: %w", page.Index, err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type registeredImage struct {
	name          string
	width, height int
	imageType     string
}

// pdfWriter holds the per-document state of one Write call.
type pdfWriter struct {
	pdf     *gofpdf.Fpdf
	ctx     context.Context
	opts    VectorOptions
	family  string
	hasBold bool
	unicode bool
	tr      func(string) string
	images  map[string]*registeredImage
}

func (w *pdfWriter) setupFonts() {
	w.family = "Helvetica"
	w.hasBold = true
	w.tr = w.pdf.UnicodeTranslatorFromDescriptor("")

	if w.opts.FontPath == "" {
		return
	}
	w.pdf.AddUTF8Font("body", "", w.opts.FontPath)
	if w.opts.FontBoldPath != "" {
		w.pdf.AddUTF8Font("body", "B", w.opts.FontBoldPath)
	}
	if err := w.pdf.Error(); err != nil {
		logging.WarnWithComponent(logging.ComponentRenderer, "Falling back to core font", "font", w.opts.FontPath, "error", err)
		w.pdf.ClearError()
		return
	}
	w.family = "body"
	w.hasBold = w.opts.FontBoldPath != ""
	w.unicode = true
	w.tr = func(s string) string { return s }
}

func (w *pdfWriter) draw(cmd Command) {
	switch c := cmd.(type) {
	case Text:
		w.text(c)
	case Rect:
		w.rect(c)
	case Circle:
		w.circle(c)
	case Line:
		w.line(c)
	case Polygon:
		w.polygon(c)
	case Image:
		w.image(c)
	}
}

func setFill(pdf *gofpdf.Fpdf, c Color) { pdf.SetFillColor(int(c.R), int(c.G), int(c.B)) }
func setDraw(pdf *gofpdf.Fpdf, c Color) { pdf.SetDrawColor(int(c.R), int(c.G), int(c.B)) }

// withAlpha runs fn with a transparency group when a < 1.
func (w *pdfWriter) withAlpha(a float64, fn func()) {
	if a >= 1 {
		fn()
		return
	}
	w.pdf.SetAlpha(a, "Normal")
	fn()
	w.pdf.SetAlpha(1, "Normal")
}

func alignCode(align string) string {
	switch align {
	case "center":
		return "C"
	case "right":
		return "R"
	}
	return "L"
}

func (w *pdfWriter) text(t Text) {
	if t.Text == "" || !t.Color.Visible() {
		return
	}
	style := ""
	if t.Bold && w.hasBold {
		style += "B"
	}
	if t.Italic && !w.unicode {
		style += "I"
	}
	w.pdf.SetFont(w.family, style, t.FontSize)
	w.pdf.SetTextColor(int(t.Color.R), int(t.Color.G), int(t.Color.B))

	lineHeight := t.LineHeight
	if lineHeight < 1 {
		lineHeight = 1.2
	}
	lh := t.FontSize * lineHeight
	s := w.tr(t.Text)

	w.withAlpha(t.Color.A, func() {
		if t.W > 0 {
			w.pdf.SetXY(t.X, t.Y)
			w.pdf.MultiCell(t.W, lh, s, "", alignCode(t.Align), false)
			return
		}
		for i, line := range strings.Split(s, "\n") {
			w.pdf.SetXY(t.X, t.Y+float64(i)*lh)
			w.pdf.CellFormat(w.pdf.GetStringWidth(line)+1, lh, line, "", 0, "L", false, 0, "")
		}
	})
}

func (w *pdfWriter) rect(r Rect) {
	if r.Fill.Visible() {
		w.withAlpha(r.Fill.A, func() {
			setFill(w.pdf, r.Fill)
			if r.Radius > 0 {
				w.pdf.ClipRoundedRect(r.X, r.Y, r.W, r.H, r.Radius, false)
				w.pdf.Rect(r.X, r.Y, r.W, r.H, "F")
				w.pdf.ClipEnd()
				return
			}
			w.pdf.Rect(r.X, r.Y, r.W, r.H, "F")
		})
	}
	if r.Stroke.Visible() && r.LineWidth > 0 {
		w.withAlpha(r.Stroke.A, func() {
			setDraw(w.pdf, r.Stroke)
			w.pdf.SetLineWidth(r.LineWidth)
			if r.Radius > 0 {
				// The outline of a clipping path is stroked with the draw color
				w.pdf.ClipRoundedRect(r.X, r.Y, r.W, r.H, r.Radius, true)
				w.pdf.ClipEnd()
				return
			}
			w.pdf.Rect(r.X, r.Y, r.W, r.H, "D")
		})
	}
}

func (w *pdfWriter) circle(c Circle) {
	if c.Fill.Visible() {
		w.withAlpha(c.Fill.A, func() {
			setFill(w.pdf, c.Fill)
			w.pdf.Circle(c.CX, c.CY, c.R, "F")
		})
	}
	if c.Stroke.Visible() && c.LineWidth > 0 {
		w.withAlpha(c.Stroke.A, func() {
			setDraw(w.pdf, c.Stroke)
			w.pdf.SetLineWidth(c.LineWidth)
			w.pdf.Circle(c.CX, c.CY, c.R, "D")
		})
	}
}

func (w *pdfWriter) line(l Line) {
	if !l.Color.Visible() || l.Width <= 0 {
		return
	}
	w.withAlpha(l.Color.A, func() {
		setDraw(w.pdf, l.Color)
		w.pdf.SetLineWidth(l.Width)
		if l.Dashed {
			w.pdf.SetDashPattern([]float64{3 * l.Width, 2 * l.Width}, 0)
		}
		w.pdf.Line(l.X1, l.Y1, l.X2, l.Y2)
		if l.Dashed {
			w.pdf.SetDashPattern([]float64{}, 0)
		}
	})
}

func (w *pdfWriter) polygon(p Polygon) {
	if len(p.Points) < 3 || !p.Fill.Visible() {
		return
	}
	points := make([]gofpdf.PointType, len(p.Points))
	for i, pt := range p.Points {
		points[i] = gofpdf.PointType{X: pt.X, Y: pt.Y}
	}
	w.withAlpha(p.Fill.A, func() {
		setFill(w.pdf, p.Fill)
		w.pdf.Polygon(points, "F")
	})
}

func (w *pdfWriter) image(img Image) {
	if img.W <= 0 || img.H <= 0 {
		return
	}
	reg := w.register(img)
	if reg == nil {
		if img.Fallback != nil {
			w.text(*img.Fallback)
		}
		return
	}

	x, y, dw, dh := fitImage(img, reg.width, reg.height)
	opacity := img.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}

	w.withAlpha(opacity, func() {
		if img.Circular {
			r := math.Min(img.W, img.H) / 2
			w.pdf.ClipCircle(img.X+img.W/2, img.Y+img.H/2, r, false)
		}
		w.pdf.ImageOptions(reg.name, x, y, dw, dh, false, gofpdf.ImageOptions{ImageType: reg.imageType}, 0, "")
		if img.Circular {
			w.pdf.ClipEnd()
		}
	})
}

// fitImage places an image in its box: contained for ordinary images,
// covering for circular icons (the clip trims the overflow).
func fitImage(img Image, pw, ph int) (x, y, w, h float64) {
	if pw <= 0 || ph <= 0 {
		return img.X, img.Y, img.W, img.H
	}
	scaleX, scaleY := img.W/float64(pw), img.H/float64(ph)
	scale := math.Min(scaleX, scaleY)
	if img.Circular {
		scale = math.Max(scaleX, scaleY)
	}
	w, h = float64(pw)*scale, float64(ph)*scale
	return img.X + (img.W-w)/2, img.Y + (img.H-h)/2, w, h
}

// register returns the first of the image's sources that loads and decodes.
// A nil result means none is available.
func (w *pdfWriter) register(img Image) *registeredImage {
	for _, src := range img.Sources() {
		one := img
		one.Source = src
		if reg := w.registerSource(one); reg != nil {
			return reg
		}
	}
	return nil
}

// registerSource loads, normalises and registers one source once per document.
func (w *pdfWriter) registerSource(img Image) *registeredImage {
	key := img.Source + "\x00" + img.QRPayload
	if reg, ok := w.images[key]; ok {
		return reg
	}

	data, err := w.load(img)
	if err != nil {
		logging.DebugWithComponent(logging.ComponentRenderer, "Image unavailable", "source", truncate(img.Source, 80), "error", err)
		w.images[key] = nil
		return nil
	}

	normalized, err := imageprocessing.Normalize(data, w.opts.Processing)
	if err != nil {
		logging.DebugWithComponent(logging.ComponentRenderer, "Image could not be decoded", "source", truncate(img.Source, 80), "error", err)
		w.images[key] = nil
		return nil
	}

	reg := &registeredImage{
		name:      fmt.Sprintf("img%d", len(w.images)),
		width:     normalized.Width,
		height:    normalized.Height,
		imageType: normalized.Type,
	}
	w.pdf.RegisterImageOptionsReader(reg.name, gofpdf.ImageOptions{ImageType: reg.imageType}, bytes.NewReader(normalized.Data))
	if err := w.pdf.Error(); err != nil {
		logging.DebugWithComponent(logging.ComponentRenderer, "Image rejected by pdf writer", "source", truncate(img.Source, 80), "error", err)
		w.pdf.ClearError()
		w.images[key] = nil
		return nil
	}
	w.images[key] = reg
	return reg
}

func (w *pdfWriter) load(img Image) ([]byte, error) {
	if img.Source != "" && w.opts.Images != nil {
		data, err := w.opts.Images.Load(w.ctx, img.Source)
		if err == nil || img.QRPayload == "" {
			return data, err
		}
		if !w.opts.QRLocalFallback {
			return nil, err
		}
	}
	if img.QRPayload != "" {
		return imageprocessing.QRCode(img.QRPayload, qrPixels(img))
	}
	return nil, fmt.Errorf("no image source")
}

// qrPixels sizes locally generated QR codes for roughly 300 dpi.
func qrPixels(img Image) int {
	px := int(math.Ceil(math.Min(img.W, img.H) / 72 * 300))
	if px < 64 {
		px = 64
	}
	return px
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
