package rendering

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gilkh/livret/internal/imageprocessing"
	"github.com/gilkh/livret/internal/layout"
	"github.com/gilkh/livret/internal/logging"
)

// HTMLOptions configures the browser page executor.
type HTMLOptions struct {
	// Images inlines sources the browser cannot reach on its own (gs://).
	Images          ImageLoader
	QRServiceURL    string
	QRLocalFallback bool
	Icons           IconURLs
	// ReadyFallback forces the completion signal when images hang.
	ReadyFallback time.Duration
}

// HTMLRenderer executes draw commands as a static HTML page: one .page div
// per output page with absolutely positioned elements. The body gets
// data-render-complete="true" once every image has loaded or failed.
type HTMLRenderer struct {
	opts   HTMLOptions
	interp *Interpreter
	tmpl   *template.Template
}

func NewHTMLRenderer(opts HTMLOptions) *HTMLRenderer {
	if opts.ReadyFallback <= 0 {
		opts.ReadyFallback = 8 * time.Second
	}
	return &HTMLRenderer{
		opts: opts,
		interp: NewInterpreter(InterpreterOptions{
			Width:        layout.DesignWidth,
			Height:       layout.DesignHeight,
			QRServiceURL: opts.QRServiceURL,
			Icons:        opts.Icons,
		}),
		tmpl: template.Must(template.New("page").Parse(pageTemplate)),
	}
}

// Render interprets job and writes the page to w.
func (h *HTMLRenderer) Render(ctx context.Context, job *RenderJob, w io.Writer) error {
	return h.Write(ctx, w, h.interp.Interpret(job.Layout, job.Resolver))
}

type htmlPage struct {
	Background template.CSS
	Elements   []htmlElement
}

type htmlElement struct {
	Kind       string // text, box, svg or img
	Class      string
	Style      template.CSS
	Text       string
	Src        template.URL
	Alternates string // space separated, already filtered by safeURL
	SVG        template.HTML
	Fallback   *htmlElement
}

type pageData struct {
	Title      string
	Width      int
	Height     int
	FallbackMs int64
	Pages      []htmlPage
}

// Write renders doc as HTML.
func (h *HTMLRenderer) Write(ctx context.Context, w io.Writer, doc *Document) error {
	data := pageData{
		Title:      doc.Title,
		Width:      int(math.Round(doc.Width)),
		Height:     int(math.Round(doc.Height)),
		FallbackMs: h.opts.ReadyFallback.Milliseconds(),
	}
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		hp := htmlPage{}
		if page.Background.Visible() {
			hp.Background = template.CSS("background:" + page.Background.CSS())
		}
		for _, cmd := range page.Commands {
			if el, ok := h.element(ctx, cmd); ok {
				hp.Elements = append(hp.Elements, el)
			}
		}
		data.Pages = append(data.Pages, hp)
	}
	if err := h.tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute page template: %w", err)
	}
	return nil
}

func px(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + "px"
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func box(x, y, w, h float64) string {
	return "left:" + px(x) + ";top:" + px(y) + ";width:" + px(w) + ";height:" + px(h) + ";"
}

func (h *HTMLRenderer) element(ctx context.Context, cmd Command) (htmlElement, bool) {
	switch c := cmd.(type) {
	case Text:
		return textElement(c), c.Text != ""
	case Rect:
		var sb strings.Builder
		sb.WriteString(box(c.X, c.Y, c.W, c.H))
		if c.Fill.Visible() {
			sb.WriteString("background:" + c.Fill.CSS() + ";")
		}
		if c.Stroke.Visible() && c.LineWidth > 0 {
			sb.WriteString("border:" + px(c.LineWidth) + " solid " + c.Stroke.CSS() + ";")
		}
		if c.Radius > 0 {
			sb.WriteString("border-radius:" + px(c.Radius) + ";")
		}
		return htmlElement{Kind: "box", Style: template.CSS(sb.String())}, true
	case Circle:
		var sb strings.Builder
		sb.WriteString(box(c.CX-c.R, c.CY-c.R, 2*c.R, 2*c.R))
		sb.WriteString("border-radius:50%;")
		if c.Fill.Visible() {
			sb.WriteString("background:" + c.Fill.CSS() + ";")
		}
		if c.Stroke.Visible() && c.LineWidth > 0 {
			sb.WriteString("border:" + px(c.LineWidth) + " solid " + c.Stroke.CSS() + ";")
		}
		return htmlElement{Kind: "box", Style: template.CSS(sb.String())}, true
	case Line:
		if !c.Color.Visible() || c.Width <= 0 {
			return htmlElement{}, false
		}
		dash := ""
		if c.Dashed {
			dash = fmt.Sprintf(` stroke-dasharray="%s %s"`, num(3*c.Width), num(2*c.Width))
		}
		svg := fmt.Sprintf(`<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="%s"%s/>`,
			num(c.X1), num(c.Y1), num(c.X2), num(c.Y2), c.Color.CSS(), num(c.Width), dash)
		return htmlElement{Kind: "svg", SVG: template.HTML(svg)}, true
	case Polygon:
		if len(c.Points) < 3 || !c.Fill.Visible() {
			return htmlElement{}, false
		}
		points := make([]string, len(c.Points))
		for i, p := range c.Points {
			points[i] = num(p.X) + "," + num(p.Y)
		}
		svg := fmt.Sprintf(`<polygon points="%s" fill="%s"/>`, strings.Join(points, " "), c.Fill.CSS())
		return htmlElement{Kind: "svg", SVG: template.HTML(svg)}, true
	case Image:
		return h.imageElement(ctx, c)
	}
	return htmlElement{}, false
}

func textElement(t Text) htmlElement {
	var sb strings.Builder
	sb.WriteString("left:" + px(t.X) + ";top:" + px(t.Y) + ";")
	if t.W > 0 {
		sb.WriteString("width:" + px(t.W) + ";")
	} else {
		sb.WriteString("white-space:pre;")
	}
	sb.WriteString("font-size:" + px(t.FontSize) + ";")
	if t.Color.Visible() {
		sb.WriteString("color:" + t.Color.CSS() + ";")
	}
	if t.Bold {
		sb.WriteString("font-weight:bold;")
	}
	if t.Italic {
		sb.WriteString("font-style:italic;")
	}
	if t.Align == "center" || t.Align == "right" {
		sb.WriteString("text-align:" + t.Align + ";")
	}
	if t.LineHeight >= 1 {
		sb.WriteString("line-height:" + num(t.LineHeight) + ";")
	}
	return htmlElement{Kind: "text", Class: "text", Style: template.CSS(sb.String()), Text: t.Text}
}

func (h *HTMLRenderer) imageElement(ctx context.Context, img Image) (htmlElement, bool) {
	if img.W <= 0 || img.H <= 0 {
		return htmlElement{}, false
	}
	el := htmlElement{Kind: "img", Style: template.CSS(box(img.X, img.Y, img.W, img.H))}
	if img.Circular {
		el.Class = "circular"
	}
	if img.Opacity > 0 && img.Opacity < 1 {
		el.Style += template.CSS("opacity:" + num(img.Opacity) + ";")
	}
	if img.Fallback != nil {
		fb := textElement(*img.Fallback)
		fb.Class = "text fallback"
		el.Fallback = &fb
	}

	var chain []string
	for _, src := range img.Sources() {
		if strings.HasPrefix(src, "gs://") {
			src = h.inline(ctx, src)
		}
		if u := safeURL(src); u != "" && !slices.Contains(chain, string(u)) {
			chain = append(chain, string(u))
		}
	}
	if img.QRPayload != "" && (len(chain) == 0 || h.opts.QRLocalFallback) {
		if local := localQR(img); local != "" {
			chain = append(chain, local)
		}
	}

	var src string
	if len(chain) > 0 {
		src = chain[0]
		for _, alt := range chain[1:] {
			if el.Alternates != "" {
				el.Alternates += " "
			}
			el.Alternates += strings.ReplaceAll(alt, " ", "%20")
		}
	}

	el.Src = safeURL(src)
	if el.Src == "" {
		if el.Fallback != nil {
			fb := *el.Fallback
			fb.Class = "text"
			return fb, true
		}
		return htmlElement{}, false
	}
	return el, true
}

// inline turns a source the browser cannot fetch into a data: URI.
func (h *HTMLRenderer) inline(ctx context.Context, src string) string {
	if h.opts.Images == nil {
		return ""
	}
	data, err := h.opts.Images.Load(ctx, src)
	if err != nil {
		logging.DebugWithComponent(logging.ComponentRenderer, "Could not inline image", "source", truncate(src, 80), "error", err)
		return ""
	}
	return imageprocessing.ToDataURI(data)
}

func localQR(img Image) string {
	png, err := imageprocessing.QRCode(img.QRPayload, qrPixels(img))
	if err != nil {
		return ""
	}
	return imageprocessing.ToDataURI(png)
}

// safeURL admits only the schemes the page is allowed to load.
func safeURL(src string) template.URL {
	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "data:image/"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(src, "/") && !strings.HasPrefix(src, "//"):
		return template.URL(src)
	}
	return ""
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
html, body { margin: 0; padding: 0; background: #fff; }
.page { position: relative; overflow: hidden; break-after: page; page-break-after: always; }
.page:last-child { break-after: auto; page-break-after: auto; }
.page > * { position: absolute; box-sizing: border-box; }
.text { margin: 0; white-space: pre-wrap; line-height: 1.2; font-family: Helvetica, Arial, sans-serif; }
.fallback { display: none; }
img { object-fit: contain; }
img.circular { border-radius: 50%; object-fit: cover; }
svg.shape { left: 0; top: 0; overflow: visible; pointer-events: none; }
@page { margin: 0; }
</style>
<script>
function livretImageFailed(img) {
  var rest = (img.getAttribute('data-alternates') || '').split(' ').filter(Boolean);
  if (rest.length) {
    var next = rest.shift();
    if (rest.length) {
      img.setAttribute('data-alternates', rest.join(' '));
    } else {
      img.removeAttribute('data-alternates');
    }
    img.src = next;
    return;
  }
  img.style.display = 'none';
  var sibling = img.nextElementSibling;
  if (sibling && sibling.classList.contains('fallback')) {
    sibling.style.display = 'block';
  }
}
</script>
</head>
<body>
{{- range .Pages}}
<div class="page" style="width: {{$.Width}}px; height: {{$.Height}}px; {{.Background}}">
{{- range .Elements}}
{{- if eq .Kind "text"}}
<div class="{{.Class}}" style="{{.Style}}">{{.Text}}</div>
{{- else if eq .Kind "box"}}
<div style="{{.Style}}"></div>
{{- else if eq .Kind "svg"}}
<svg class="shape" width="{{$.Width}}" height="{{$.Height}}">{{.SVG}}</svg>
{{- else if eq .Kind "img"}}
<img class="{{.Class}}" style="{{.Style}}" src="{{.Src}}"{{if .Alternates}} data-alternates="{{.Alternates}}"{{end}} onerror="livretImageFailed(this)" alt="">
{{- with .Fallback}}
<div class="{{.Class}}" style="{{.Style}}">{{.Text}}</div>
{{- end}}
{{- end}}
{{- end}}
</div>
{{- end}}
<script>
(function () {
  function complete() {
    document.body.setAttribute('data-render-complete', 'true');
  }
  setTimeout(complete, {{.FallbackMs}});
  var waits = Array.prototype.map.call(document.images, function (img) {
    return new Promise(function (resolve) {
      function settled() {
        return img.complete && (img.naturalWidth > 0 || img.style.display === 'none');
      }
      if (settled()) {
        resolve();
        return;
      }
      img.addEventListener('load', resolve);
      img.addEventListener('error', function () {
        setTimeout(function () { if (settled()) resolve(); }, 0);
      });
    });
  });
  Promise.all(waits)
    .then(function () { return document.fonts ? document.fonts.ready : null; })
    .then(complete, complete);
})();
</script>
</body>
</html>
`
