package rendering

import (
	"sort"

	"github.com/gilkh/livret/internal/layout"
	"github.com/gilkh/livret/internal/logging"
	"github.com/gilkh/livret/internal/resolver"
)

// Flow layout for blocks without coordinates, in design units.
const (
	flowMargin    = 40.0
	flowLineStep  = 24.0
	titleFontSize = 20.0
)

// InterpreterOptions configures output size and external icon/QR services.
type InterpreterOptions struct {
	Width        float64
	Height       float64
	QRServiceURL string
	Icons        IconURLs
}

// Interpreter turns a layout plus resolved data into draw commands. It is
// stateless and safe for concurrent use.
type Interpreter struct {
	opts   InterpreterOptions
	mapper Mapper
}

func NewInterpreter(opts InterpreterOptions) *Interpreter {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = layout.DesignWidth, layout.DesignHeight
	}
	return &Interpreter{opts: opts, mapper: NewMapper(opts.Width, opts.Height)}
}

func (in *Interpreter) Mapper() Mapper { return in.mapper }

// blockCtx carries per-block state through the renderers.
type blockCtx struct {
	r          *resolver.Resolver
	m          Mapper
	pageIndex  int
	blockIndex int
}

// Interpret walks the layout's pages in order. Excluded pages produce
// nothing, blocks are drawn in stable z order and level-gated.
func (in *Interpreter) Interpret(l *layout.Layout, r *resolver.Resolver) *Document {
	doc := &Document{Title: l.Name, Width: in.opts.Width, Height: in.opts.Height}

	for pageIndex, page := range l.Pages {
		if page.ExcludeFromPdf {
			continue
		}
		pc := PageCommands{Index: pageIndex, Background: ColorOr(page.BgColor, Color{})}
		flowY := flowMargin

		if page.Title != "" {
			pc.Commands = append(pc.Commands, Text{
				X:        in.mapper.ScaleX(flowMargin),
				Y:        in.mapper.ScaleY(flowY),
				W:        in.mapper.ScaleX(layout.DesignWidth - 2*flowMargin),
				Text:     r.Interpolate(page.Title),
				FontSize: in.mapper.ScaleRadial(titleFontSize),
				Color:    Black,
				Bold:     true,
			})
			flowY += titleFontSize + 12
		}

		order := make([]int, len(page.Blocks))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return page.Blocks[order[a]].Common.Z < page.Blocks[order[b]].Common.Z
		})

		for _, blockIndex := range order {
			block := &page.Blocks[blockIndex]
			if !r.Visible(block.Common.Levels) {
				continue
			}
			if !block.Known() {
				logging.WarnWithComponent(logging.ComponentRenderer, "Skipping unsupported block", "type", block.Type, "page", pageIndex, "block", blockIndex)
				continue
			}

			x, y := block.Common.Pos()
			positioned := block.Common.Positioned()
			if !positioned {
				x, y = flowMargin, flowY
			}

			bc := &blockCtx{r: r, m: in.mapper, pageIndex: pageIndex, blockIndex: blockIndex}
			pc.Commands = append(pc.Commands, in.renderBlock(bc, block, x, y)...)

			if !positioned {
				flowY += flowLineStep
			}
		}

		if l.Watermark != "" {
			pc.Commands = append(pc.Commands, in.watermark(r.Interpolate(l.Watermark)))
		}
		doc.Pages = append(doc.Pages, pc)
	}
	return doc
}

func (in *Interpreter) watermark(text string) Text {
	return Text{
		X:        0,
		Y:        in.mapper.ScaleY(layout.DesignHeight/2 - 30),
		W:        in.opts.Width,
		Text:     text,
		FontSize: in.mapper.ScaleRadial(48),
		Color:    Color{160, 160, 160, 0.25},
		Bold:     true,
		Align:    "center",
	}
}

func (in *Interpreter) renderBlock(bc *blockCtx, b *layout.Block, x, y float64) []Command {
	switch p := b.Props.(type) {
	case *layout.TextProps:
		return in.renderText(bc, b, p, x, y)
	case *layout.ImageProps:
		return in.renderImage(bc, b, p, x, y)
	case *layout.ShapeProps:
		if b.Type == layout.TypeCircle {
			return in.renderCircle(bc, b, p, x, y)
		}
		return in.renderRect(bc, b, p, x, y)
	case *layout.LineProps:
		return in.renderLine(bc, b, p, x, y)
	case *layout.QRProps:
		return in.renderQR(bc, b, p, x, y)
	case *layout.TableProps:
		return in.renderTable(bc, b, p, x, y)
	case *layout.StudentInfoProps:
		return in.renderStudentInfo(bc, b, p, x, y)
	case *layout.CategoryTitleProps:
		return in.renderCategoryTitle(bc, b, p, x, y)
	case *layout.CompetencyListProps:
		return in.renderCompetencyList(bc, b, p, x, y)
	case *layout.SignatureProps:
		return in.renderSignatureLine(bc, b, p, x, y)
	case *layout.SignatureBoxProps:
		return in.renderSignatureBox(bc, b, p, x, y)
	case *layout.SignatureDateProps:
		return in.renderSignatureDate(bc, b, p, x, y)
	case *layout.DropdownProps:
		return in.renderDropdown(bc, b, p, x, y)
	case *layout.DropdownReferenceProps:
		return in.renderDropdownReference(bc, b, p, x, y)
	case *layout.LanguageToggleProps:
		return in.renderLanguageToggle(bc, b, p, x, y)
	case *layout.PromotionInfoProps:
		return in.renderPromotionInfo(bc, b, p, x, y)
	}
	return nil
}
