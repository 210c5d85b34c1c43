package rendering

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/gilkh/livret/internal/database"
	"github.com/gilkh/livret/internal/layout"
)

const defaultFontSize = 12.0

// text builds a Text command from a block's common style at design position.
func (bc *blockCtx) text(c layout.Common, s string, x, y, w, h float64) Text {
	size := c.FontSize
	if size <= 0 {
		size = defaultFontSize
	}
	tx, ty, tw, th := bc.m.Rect(x, y, w, h)
	return Text{
		X: tx, Y: ty, W: tw, H: th,
		Text:       s,
		FontSize:   bc.m.ScaleRadial(size),
		Color:      ColorOr(c.Color, Black),
		Bold:       c.Bold,
		Align:      c.Align,
		LineHeight: 1.2,
	}
}

func (in *Interpreter) renderText(bc *blockCtx, b *layout.Block, p *layout.TextProps, x, y float64) []Command {
	s := p.Text
	if b.Type == layout.TypeDynamicText {
		s = bc.r.Interpolate(s)
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	w, h := b.Common.Size(0, 0)
	t := bc.text(b.Common, s, x, y, w, h)
	t.Italic = p.Italic
	t.LineHeight = p.LineHeight
	return []Command{t}
}

func (in *Interpreter) renderImage(bc *blockCtx, b *layout.Block, p *layout.ImageProps, x, y float64) []Command {
	src := strings.TrimSpace(bc.r.Interpolate(p.URL))
	if src == "" {
		return nil
	}
	w, h := b.Common.Size(100, 100)
	ix, iy, iw, ih := bc.m.Rect(x, y, w, h)
	return []Command{Image{X: ix, Y: iy, W: iw, H: ih, Source: src, Circular: p.Rounded, Opacity: p.Opacity}}
}

func (in *Interpreter) renderRect(bc *blockCtx, b *layout.Block, p *layout.ShapeProps, x, y float64) []Command {
	w, h := b.Common.Size(100, 50)
	rx, ry, rw, rh := bc.m.Rect(x, y, w, h)
	fill := ColorOr(b.Common.Color, Color{})
	fill.A *= p.Opacity
	r := Rect{X: rx, Y: ry, W: rw, H: rh, Fill: fill, Radius: bc.m.ScaleRadial(p.Radius)}
	if p.BorderColor != "" || p.BorderWidth > 0 {
		r.Stroke = ColorOr(p.BorderColor, Black)
		r.LineWidth = bc.m.ScaleRadial(math.Max(p.BorderWidth, 1))
	}
	if !r.Fill.Visible() && !r.Stroke.Visible() {
		return nil
	}
	return []Command{r}
}

func (in *Interpreter) renderCircle(bc *blockCtx, b *layout.Block, p *layout.ShapeProps, x, y float64) []Command {
	w, h := b.Common.Size(80, 80)
	radius := p.Radius
	if radius <= 0 {
		radius = math.Min(w, h) / 2
	}
	fill := ColorOr(b.Common.Color, Color{})
	fill.A *= p.Opacity
	c := Circle{
		CX:   bc.m.ScaleX(x + radius),
		CY:   bc.m.ScaleY(y + radius),
		R:    bc.m.ScaleRadial(radius),
		Fill: fill,
	}
	if p.BorderColor != "" || p.BorderWidth > 0 {
		c.Stroke = ColorOr(p.BorderColor, Black)
		c.LineWidth = bc.m.ScaleRadial(math.Max(p.BorderWidth, 1))
	}
	if !c.Fill.Visible() && !c.Stroke.Visible() {
		return nil
	}
	return []Command{c}
}

func (in *Interpreter) renderLine(bc *blockCtx, b *layout.Block, p *layout.LineProps, x, y float64) []Command {
	w, h := b.Common.Size(100, 0)
	x2, y2 := x+w, y+h
	if p.X2 != nil {
		x2 = *p.X2
	}
	if p.Y2 != nil {
		y2 = *p.Y2
	}
	color := ColorOr(b.Common.Color, Black)
	line := Line{
		X1: bc.m.ScaleX(x), Y1: bc.m.ScaleY(y),
		X2: bc.m.ScaleX(x2), Y2: bc.m.ScaleY(y2),
		Color:  color,
		Width:  bc.m.ScaleRadial(p.Thickness),
		Dashed: p.Dashed,
	}
	cmds := []Command{line}
	if b.Type == layout.TypeArrow {
		if head, ok := arrowHead(line, bc.m.ScaleRadial(p.HeadSize), color); ok {
			cmds = append(cmds, head)
		}
	}
	return cmds
}

// arrowHead builds a filled triangle at the end of l.
func arrowHead(l Line, size float64, color Color) (Polygon, bool) {
	dx, dy := l.X2-l.X1, l.Y2-l.Y1
	length := math.Hypot(dx, dy)
	if length == 0 {
		return Polygon{}, false
	}
	ux, uy := dx/length, dy/length
	bx, by := l.X2-ux*size, l.Y2-uy*size
	half := size / 2
	return Polygon{
		Points: []Point{
			{l.X2, l.Y2},
			{bx - uy*half, by + ux*half},
			{bx + uy*half, by - ux*half},
		},
		Fill: color,
	}, true
}

func (in *Interpreter) renderQR(bc *blockCtx, b *layout.Block, p *layout.QRProps, x, y float64) []Command {
	payload := strings.TrimSpace(bc.r.Interpolate(p.Payload()))
	if payload == "" {
		return nil
	}
	w, h := b.Common.Size(100, 100)
	qx, qy, qw, qh := bc.m.Rect(x, y, w, h)
	return []Command{Image{
		X: qx, Y: qy, W: qw, H: qh,
		Source:    in.qrURL(payload, qw, qh),
		QRPayload: payload,
		Opacity:   1,
	}}
}

func (in *Interpreter) qrURL(payload string, w, h float64) string {
	if in.opts.QRServiceURL == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(in.opts.QRServiceURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%ssize=%dx%d&data=%s", in.opts.QRServiceURL, sep,
		int(math.Round(w)), int(math.Round(h)), url.QueryEscape(payload))
}

var studentInfoLabels = map[string]string{
	"name":      "Nom",
	"firstName": "Prénom",
	"lastName":  "Nom",
	"dob":       "Date de naissance",
	"class":     "Classe",
	"level":     "Niveau",
}

func (in *Interpreter) renderStudentInfo(bc *blockCtx, b *layout.Block, p *layout.StudentInfoProps, x, y float64) []Command {
	ctx := bc.r.Context()
	values := map[string]string{
		"name":      ctx["student.fullName"],
		"firstName": ctx["student.firstName"],
		"lastName":  ctx["student.lastName"],
		"dob":       ctx["student.dob"],
		"class":     ctx["class.name"],
		"level":     ctx["student.level"],
	}

	w, _ := b.Common.Size(0, 0)
	var cmds []Command
	line := 0
	for _, field := range p.Fields {
		v := values[field]
		if v == "" {
			continue
		}
		if p.ShowLabels {
			v = studentInfoLabels[field] + " : " + v
		}
		cmds = append(cmds, bc.text(b.Common, v, x, y+float64(line)*p.LineHeight, w, 0))
		line++
	}
	return cmds
}

func (in *Interpreter) renderCategoryTitle(bc *blockCtx, b *layout.Block, p *layout.CategoryTitleProps, x, y float64) []Command {
	s := bc.r.Interpolate(p.Text)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	w, h := b.Common.Size(300, 28)
	var cmds []Command
	if bg, ok := ParseColor(p.Background); ok && bg.Visible() {
		rx, ry, rw, rh := bc.m.Rect(x, y, w, h)
		cmds = append(cmds, Rect{X: rx, Y: ry, W: rw, H: rh, Fill: bg})
	}
	t := bc.text(b.Common, s, x+6, y+(h-b.Common.FontSize)/2, w-12, 0)
	return append(cmds, t)
}

func (in *Interpreter) renderCompetencyList(bc *blockCtx, b *layout.Block, p *layout.CompetencyListProps, x, y float64) []Command {
	w, _ := b.Common.Size(0, 0)
	var cmds []Command
	line := 0
	for _, item := range p.Items {
		if !bc.r.Visible(item.Levels) {
			continue
		}
		s := strings.TrimSpace(bc.r.Interpolate(item.Text))
		if s == "" {
			continue
		}
		cmds = append(cmds, bc.text(b.Common, p.Bullet+" "+s, x, y+float64(line)*p.LineHeight, w, 0))
		line++
	}
	return cmds
}

func (in *Interpreter) renderDropdown(bc *blockCtx, b *layout.Block, p *layout.DropdownProps, x, y float64) []Command {
	value, ok := bc.r.Dropdown(b.Common.BlockID, p.DropdownNumber, p.VariableName)
	if !ok {
		return nil
	}
	if p.Label != "" {
		value = bc.r.Interpolate(p.Label) + " " + value
	}
	w, h := b.Common.Size(0, 0)
	return []Command{bc.text(b.Common, value, x, y, w, h)}
}

func (in *Interpreter) renderDropdownReference(bc *blockCtx, b *layout.Block, p *layout.DropdownReferenceProps, x, y float64) []Command {
	value, ok := bc.r.Dropdown(p.DropdownBlockID, p.DropdownNumber, p.VariableName)
	if !ok {
		return nil
	}
	w, h := b.Common.Size(0, 0)
	return []Command{bc.text(b.Common, p.Prefix+value, x, y, w, h)}
}

// PromotionText formats a promotion record for a promotion_info field.
func PromotionText(rec database.PromotionRecord, field string) string {
	switch field {
	case "level":
		return rec.To
	case "year":
		if rec.Year == "" {
			return ""
		}
		return "Année " + rec.Year
	case "class":
		return rec.Class
	case "from":
		return rec.From
	default:
		if rec.To == "" {
			return ""
		}
		s := "Passage en " + rec.To
		if rec.Year != "" {
			s += " (" + rec.Year + ")"
		}
		return s
	}
}

func (in *Interpreter) renderPromotionInfo(bc *blockCtx, b *layout.Block, p *layout.PromotionInfoProps, x, y float64) []Command {
	rec, ok := bc.r.Promotion(p.TargetLevel, p.Level, p.Period)
	if !ok {
		return nil
	}
	s := PromotionText(rec, p.Field)
	if s == "" {
		return nil
	}
	if p.Label != "" {
		s = bc.r.Interpolate(p.Label) + " " + s
	}
	w, h := b.Common.Size(0, 0)
	return []Command{bc.text(b.Common, s, x, y, w, h)}
}
