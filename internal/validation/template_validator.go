package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gilkh/livret/internal/layout"
	"github.com/gilkh/livret/internal/rendering"
)

// ValidationResult represents the result of template validation
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Message  string   `json:"message"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// geometryRequired lists block types that cannot be drawn without a size.
var geometryRequired = map[layout.BlockType]bool{
	layout.TypeImage: true,
	layout.TypeRect:  true,
	layout.TypeQR:    true,
	layout.TypeLine:  true,
	layout.TypeArrow: true,
}

// TemplateValidator checks template layouts before they are stored
type TemplateValidator struct {
	validate *validator.Validate
	levels   map[string]bool
}

// NewTemplateValidator creates a validator. levels, when given, are the
// known class levels used to flag typos in block level gates.
func NewTemplateValidator(levels []string) *TemplateValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	known := make(map[string]bool, len(levels))
	for _, l := range levels {
		known[strings.ToUpper(l)] = true
	}
	return &TemplateValidator{validate: v, levels: known}
}

// ValidateJSON accepts either a bare pages array or a full template document.
func (v *TemplateValidator) ValidateJSON(data []byte) (*layout.Layout, ValidationResult) {
	trimmed := strings.TrimSpace(string(data))
	var (
		l   *layout.Layout
		err error
	)
	if strings.HasPrefix(trimmed, "[") {
		l, err = layout.Parse("", data)
	} else {
		l, err = layout.ParseDocument(data)
	}
	if err != nil {
		var syntaxErr *json.SyntaxError
		result := ValidationResult{Warnings: []string{}, Errors: []string{}}
		if errors.As(err, &syntaxErr) {
			result.errorf("invalid JSON at offset %d: %v", syntaxErr.Offset, syntaxErr)
		} else {
			result.errorf("%v", err)
		}
		result.Message = "Template could not be decoded"
		return nil, result
	}
	return l, v.ValidateLayout(l)
}

// ValidateLayout reports unknown block types, invalid props, missing
// geometry, unparseable colors and duplicate block ids.
func (v *TemplateValidator) ValidateLayout(l *layout.Layout) ValidationResult {
	result := ValidationResult{Warnings: []string{}, Errors: []string{}}

	if len(l.Pages) == 0 {
		result.errorf("template has no pages")
	}
	if len(l.RenderedPages()) == 0 && len(l.Pages) > 0 {
		result.warnf("every page is excluded from the PDF")
	}

	blockIDs := map[string]string{}
	for pi, page := range l.Pages {
		if page.BgColor != "" {
			if _, ok := rendering.ParseColor(page.BgColor); !ok {
				result.errorf("page %d: invalid bgColor %q", pi+1, page.BgColor)
			}
		}

		for bi := range page.Blocks {
			block := &page.Blocks[bi]
			where := fmt.Sprintf("page %d block %d (%s)", pi+1, bi+1, block.Type)

			if !block.Known() {
				result.errorf("%s: unknown block type", where)
				continue
			}
			v.checkStruct(&result, where, block.Common)
			v.checkStruct(&result, where, block.Props)

			colors := map[string]string{"color": block.Common.Color}
			if shape, ok := block.Props.(*layout.ShapeProps); ok {
				colors["borderColor"] = shape.BorderColor
			}
			for field, value := range colors {
				if value == "" {
					continue
				}
				if _, ok := rendering.ParseColor(value); !ok {
					result.errorf("%s: invalid %s %q", where, field, value)
				}
			}

			if geometryRequired[block.Type] && (block.Common.Width == nil || (block.Type != layout.TypeLine && block.Type != layout.TypeArrow && block.Common.Height == nil)) {
				result.warnf("%s: missing width/height, defaults will be used", where)
			}
			if !block.Common.Positioned() {
				result.warnf("%s: no coordinates, placed by document flow", where)
			}

			if id := block.Common.BlockID; id != "" {
				if prev, dup := blockIDs[id]; dup {
					result.errorf("%s: duplicate blockId %q (first used at %s)", where, id, prev)
				} else {
					blockIDs[id] = where
				}
			}

			if len(v.levels) > 0 {
				for _, lvl := range block.Common.Levels {
					if !v.levels[strings.ToUpper(strings.TrimSpace(lvl))] {
						result.warnf("%s: unknown level %q", where, lvl)
					}
				}
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	if result.Valid {
		result.Message = "Template validation successful"
	} else {
		result.Message = fmt.Sprintf("Template has %d error(s)", len(result.Errors))
	}
	return result
}

func (v *TemplateValidator) checkStruct(result *ValidationResult, where string, s any) {
	err := v.validate.Struct(s)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		result.errorf("%s: %v", where, err)
		return
	}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			result.errorf("%s: %s failed %s=%s", where, field, fe.Tag(), fe.Param())
		} else {
			result.errorf("%s: %s failed %s", where, field, fe.Tag())
		}
	}
}
