// Package resolver turns a student, an assignment and its signatures into
// the values blocks display. Missing data is reported with ok=false and never
// as an error: partially filled documents are normal.
package resolver

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gilkh/livret/internal/config"
	"github.com/gilkh/livret/internal/database"
	"github.com/gilkh/livret/internal/layout"
)

// DateLayout renders dates of birth as DD:MM:YYYY.
const DateLayout = "02:01:2006"

// Input is everything needed to resolve one document.
type Input struct {
	Student    *database.Student
	Assignment *database.TemplateAssignment
	Data       *database.AssignmentData
	Signatures []database.TemplateSignature
	Signers    map[string]database.User
	Variables  map[string]string
	LevelOrder []string
}

// Resolver answers lookups for one render. It is immutable once built.
type Resolver struct {
	in      Input
	level   string
	context map[string]string
}

var tokenPattern = regexp.MustCompile(`\{([A-Za-z0-9_.\-]+)\}`)

func New(in Input) *Resolver {
	if in.Data == nil {
		in.Data = database.NewAssignmentData()
	}
	if in.Student == nil {
		in.Student = &database.Student{}
	}
	if len(in.LevelOrder) == 0 {
		in.LevelOrder = config.DefaultLevelOrder
	}

	r := &Resolver{in: in, level: strings.TrimSpace(in.Student.EffectiveLevel())}
	r.context = r.buildContext()
	return r
}

func (r *Resolver) buildContext() map[string]string {
	ctx := make(map[string]string, len(r.in.Variables)+len(r.in.Data.Values)+8)
	for k, v := range r.in.Variables {
		ctx[k] = v
	}
	for k, v := range r.in.Data.Values {
		ctx[k] = v
	}

	s := r.in.Student
	ctx["student.firstName"] = s.FirstName
	ctx["student.lastName"] = s.LastName
	ctx["student.fullName"] = strings.TrimSpace(s.FirstName + " " + s.LastName)
	ctx["student.level"] = r.level
	if !s.DateOfBirth.IsZero() {
		ctx["student.dob"] = s.DateOfBirth.Format(DateLayout)
	} else {
		ctx["student.dob"] = ""
	}
	ctx["class.name"] = r.ClassName()
	return ctx
}

// Context returns a copy of the flat key/value context.
func (r *Resolver) Context() map[string]string {
	out := make(map[string]string, len(r.context))
	for k, v := range r.context {
		out[k] = v
	}
	return out
}

// Interpolate replaces {key} tokens with context values. Unknown tokens are
// left as written.
func (r *Resolver) Interpolate(s string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	return tokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		key := tok[1 : len(tok)-1]
		if v, ok := r.context[key]; ok {
			return v
		}
		return tok
	})
}

func (r *Resolver) Student() *database.Student { return r.in.Student }

// Level is the level used for block visibility.
func (r *Resolver) Level() string { return r.level }

func (r *Resolver) ClassName() string {
	if r.in.Student.Class != nil {
		return r.in.Student.Class.Name
	}
	return ""
}

// Visible reports whether content restricted to levels shows for this student.
func (r *Resolver) Visible(levels []string) bool {
	if len(levels) == 0 {
		return true
	}
	for _, l := range levels {
		if strings.EqualFold(strings.TrimSpace(l), r.level) && r.level != "" {
			return true
		}
	}
	return false
}

// Dropdown resolves a dropdown answer: the stable blockId key first, then the
// legacy numbered key, then the free-form variable name.
func (r *Resolver) Dropdown(blockID string, number int, variableName string) (string, bool) {
	var keys []string
	if blockID != "" {
		keys = append(keys, "dropdown_"+blockID)
	}
	if number > 0 {
		keys = append(keys, fmt.Sprintf("dropdown_%d", number))
	}
	if variableName != "" {
		keys = append(keys, variableName)
	}
	for _, key := range keys {
		if v, ok := r.in.Data.Value(key); ok {
			return v, true
		}
	}
	return "", false
}

// TableRowLanguages resolves the language strip of a table row:
// table_<blockId>_row_<rowId>, then table_<blockIndex>_row_<rowIndex>, then
// the row's configured defaults. Items are level gated.
func (r *Resolver) TableRowLanguages(blockID string, blockIndex int, rowID string, rowIndex int, defaults []layout.LanguageItem) []layout.LanguageItem {
	var keys []string
	if blockID != "" && rowID != "" {
		keys = append(keys, fmt.Sprintf("table_%s_row_%s", blockID, rowID))
	}
	keys = append(keys, fmt.Sprintf("table_%d_row_%d", blockIndex, rowIndex))
	return r.languages(keys, defaults)
}

// ToggleLanguages resolves a standalone language toggle with the same
// stable-then-positional precedence.
func (r *Resolver) ToggleLanguages(blockID string, pageIndex, blockIndex int, defaults []layout.LanguageItem) []layout.LanguageItem {
	var keys []string
	if blockID != "" {
		keys = append(keys, "language_toggle_"+blockID)
	}
	keys = append(keys, fmt.Sprintf("language_toggle_%d_%d", pageIndex, blockIndex))
	return r.languages(keys, defaults)
}

func (r *Resolver) languages(keys []string, defaults []layout.LanguageItem) []layout.LanguageItem {
	items := defaults
	for _, key := range keys {
		if stored, ok := r.in.Data.Languages(key); ok {
			items = stored
			break
		}
	}
	var visible []layout.LanguageItem
	for _, item := range items {
		if r.Visible(item.Levels) {
			visible = append(visible, item)
		}
	}
	return visible
}

// AcademicYear labels the school year a date falls in. September or later
// starts a new year.
func AcademicYear(t time.Time) string {
	y := t.Year()
	if t.Month() >= time.September {
		return fmt.Sprintf("%d/%d", y, y+1)
	}
	return fmt.Sprintf("%d/%d", y-1, y)
}

// NextLevel returns the level following level in order, or "".
func NextLevel(level string, order []string) string {
	for i, l := range order {
		if strings.EqualFold(l, level) && i+1 < len(order) {
			return order[i+1]
		}
	}
	return ""
}
