package rendering

import (
	"slices"

	"github.com/gilkh/livret/internal/layout"
)

const signatureInset = 4.0

func (in *Interpreter) renderSignatureLine(bc *blockCtx, b *layout.Block, p *layout.SignatureProps, x, y float64) []Command {
	w, h := b.Common.Size(200, 60)
	var cmds []Command
	if p.Label != "" {
		cmds = append(cmds, bc.text(b.Common, bc.r.Interpolate(p.Label), x, y, w, 0))
	}
	cmds = append(cmds, Line{
		X1: bc.m.ScaleX(x), Y1: bc.m.ScaleY(y + h),
		X2: bc.m.ScaleX(x + w), Y2: bc.m.ScaleY(y + h),
		Color: ColorOr(b.Common.Color, Black),
		Width: bc.m.ScaleRadial(1),
	})
	return cmds
}

// renderSignatureBox draws the box and, when signed, its content: the inline
// snapshot, else the stored URL, else a text mention. Image commands carry
// the text mention as their fallback.
func (in *Interpreter) renderSignatureBox(bc *blockCtx, b *layout.Block, p *layout.SignatureBoxProps, x, y float64) []Command {
	w, h := b.Common.Size(200, 80)
	bx, by, bw, bh := bc.m.Rect(x, y, w, h)
	cmds := []Command{Rect{X: bx, Y: by, W: bw, H: bh, Stroke: ColorOr(p.BorderColor, Black), LineWidth: bc.m.ScaleRadial(1)}}

	top := y
	if p.Label != "" {
		label := b.Common
		if label.FontSize <= 0 {
			label.FontSize = 9
		}
		cmds = append(cmds, bc.text(label, bc.r.Interpolate(p.Label), x+signatureInset, y+signatureInset, w-2*signatureInset, 0))
		top += label.FontSize*1.2 + signatureInset
	}

	view, ok := bc.r.SignatureFor(p.Type)
	if !ok {
		return cmds
	}

	fallback := bc.text(b.Common, view.FallbackText(), x+signatureInset, top+signatureInset, w-2*signatureInset, 0)
	var sources []string
	for _, src := range []string{view.InlineData, view.URL} {
		if src != "" && !slices.Contains(sources, src) {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return append(cmds, fallback)
	}

	ix, iy, iw, ih := bc.m.Rect(x+signatureInset, top+signatureInset, w-2*signatureInset, y+h-top-2*signatureInset)
	if iw <= 0 || ih <= 0 {
		return append(cmds, fallback)
	}
	return append(cmds, Image{X: ix, Y: iy, W: iw, H: ih, Source: sources[0], Alternates: sources[1:], Opacity: 1, Fallback: &fallback})
}

func (in *Interpreter) renderSignatureDate(bc *blockCtx, b *layout.Block, p *layout.SignatureDateProps, x, y float64) []Command {
	signedAt, ok := bc.r.SignatureDate(p.Level, p.Semester)
	if !ok {
		return nil
	}
	s := signedAt.Format("02/01/2006")
	if p.Label != "" {
		s = bc.r.Interpolate(p.Label) + " " + s
	}
	w, h := b.Common.Size(0, 0)
	return []Command{bc.text(b.Common, s, x, y, w, h)}
}
