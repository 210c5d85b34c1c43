package rendering

import (
	"github.com/gilkh/livret/internal/layout"
)

// Language icon strip geometry, in design units.
const (
	iconDiameter = 24.0
	iconGap      = 6.0
)

var (
	activeRing      = Color{37, 99, 235, 1}
	tableInactive   = White.WithAlpha(0.4)
	toggleInactive  = Black.WithAlpha(0.4)
	defaultTextFill = Black
)

func (in *Interpreter) renderTable(bc *blockCtx, b *layout.Block, p *layout.TableProps, x, y float64) []Command {
	if len(p.ColumnWidths) == 0 {
		return nil
	}
	var total float64
	for _, w := range p.ColumnWidths {
		total += w
	}

	border := ColorOr(p.BorderColor, Black)
	lineWidth := bc.m.ScaleRadial(p.BorderWidth)
	var cmds []Command
	rowY := y

	for rowIndex, row := range p.Cells {
		rowH := p.RowHeights[rowIndex]
		cellX := x
		for col, colW := range p.ColumnWidths {
			rx, ry, rw, rh := bc.m.Rect(cellX, rowY, colW, rowH)
			var cell layout.TableCell
			if col < len(row) {
				cell = row[col]
			}
			cmds = append(cmds, Rect{X: rx, Y: ry, W: rw, H: rh, Fill: ColorOr(cell.Fill, Color{}), Stroke: border, LineWidth: lineWidth})

			if s := bc.r.Interpolate(cell.Text); s != "" {
				style := b.Common
				if cell.FontSize > 0 {
					style.FontSize = cell.FontSize
				}
				if cell.Color != "" {
					style.Color = cell.Color
				}
				if cell.Align != "" {
					style.Align = cell.Align
				}
				style.Bold = style.Bold || cell.Bold
				size := style.FontSize
				if size <= 0 {
					size = defaultFontSize
				}
				textY := rowY + (rowH-size*1.2)/2
				if textY < rowY+p.CellPadding {
					textY = rowY + p.CellPadding
				}
				cmds = append(cmds, bc.text(style, s, cellX+p.CellPadding, textY, colW-2*p.CellPadding, 0))
			}
			cellX += colW
		}
		rowY += rowH

		if p.ExpandedRows {
			rx, ry, rw, rh := bc.m.Rect(x, rowY, total, p.ExpandedRowHeight)
			cmds = append(cmds, Rect{X: rx, Y: ry, W: rw, H: rh, Stroke: border, LineWidth: lineWidth})

			items := bc.r.TableRowLanguages(b.Common.BlockID, bc.blockIndex, p.RowID(rowIndex), rowIndex, p.DefaultLanguages(rowIndex))
			iconY := rowY + (p.ExpandedRowHeight-iconDiameter)/2
			cmds = append(cmds, in.iconStrip(bc, items, p.ExpandedToggleStyle, x+p.CellPadding, iconY, iconDiameter, iconGap, tableInactive)...)
			rowY += p.ExpandedRowHeight
		}
	}
	return cmds
}

// iconStrip draws a horizontal row of circular language icons. Active items
// get a thin ring, inactive ones a translucent overlay.
func (in *Interpreter) iconStrip(bc *blockCtx, items []layout.LanguageItem, style string, x, y, diameter, gap float64, inactive Color) []Command {
	var cmds []Command
	r := diameter / 2
	for i, item := range items {
		left := x + float64(i)*(diameter+gap)
		cx, cy, cr := bc.m.ScaleX(left+r), bc.m.ScaleY(y+r), bc.m.ScaleRadial(r)

		label := item.Label
		if label == "" {
			label = item.Code
		}
		fallback := &Text{
			X: cx - cr, Y: cy - cr/2, W: 2 * cr,
			Text:     label,
			FontSize: cr * 0.8,
			Color:    defaultTextFill,
			Align:    "center",
		}
		if src := in.opts.Icons.For(item, style); src != "" {
			cmds = append(cmds, Image{X: cx - cr, Y: cy - cr, W: 2 * cr, H: 2 * cr, Source: src, Circular: true, Opacity: 1, Fallback: fallback})
		} else {
			cmds = append(cmds, *fallback)
		}

		if item.Active {
			cmds = append(cmds, Circle{CX: cx, CY: cy, R: cr, Stroke: activeRing, LineWidth: bc.m.ScaleRadial(1)})
		} else {
			cmds = append(cmds, Circle{CX: cx, CY: cy, R: cr, Fill: inactive})
		}
	}
	return cmds
}

func (in *Interpreter) renderLanguageToggle(bc *blockCtx, b *layout.Block, p *layout.LanguageToggleProps, x, y float64) []Command {
	items := bc.r.ToggleLanguages(b.Common.BlockID, bc.pageIndex, bc.blockIndex, p.Items)
	if len(items) == 0 {
		return nil
	}
	style := p.Style
	if style == "" {
		style = "v1"
		if b.Type == layout.TypeLanguageToggleV2 {
			style = "v2"
		}
	}
	return in.iconStrip(bc, items, style, x, y, p.IconSize, p.Spacing, toggleInactive)
}
