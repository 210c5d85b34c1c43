package layout

// BlockType names one of the closed set of block variants.
type BlockType string

const (
	TypeText              BlockType = "text"
	TypeDynamicText       BlockType = "dynamic_text"
	TypeImage             BlockType = "image"
	TypeRect              BlockType = "rect"
	TypeCircle            BlockType = "circle"
	TypeLine              BlockType = "line"
	TypeArrow             BlockType = "arrow"
	TypeQR                BlockType = "qr"
	TypeTable             BlockType = "table"
	TypeStudentInfo       BlockType = "student_info"
	TypeCategoryTitle     BlockType = "category_title"
	TypeCompetencyList    BlockType = "competency_list"
	TypeSignature         BlockType = "signature"
	TypeSignatureBox      BlockType = "signature_box"
	TypeSignatureDate     BlockType = "signature_date"
	TypeDropdown          BlockType = "dropdown"
	TypeDropdownReference BlockType = "dropdown_reference"
	TypeLanguageToggle    BlockType = "language_toggle"
	TypeLanguageToggleV2  BlockType = "language_toggle_v2"
	TypePromotionInfo     BlockType = "promotion_info"
)

// KnownTypes lists every supported block type.
var KnownTypes = []BlockType{
	TypeText, TypeDynamicText, TypeImage, TypeRect, TypeCircle, TypeLine, TypeArrow, TypeQR,
	TypeTable, TypeStudentInfo, TypeCategoryTitle, TypeCompetencyList, TypeSignature,
	TypeSignatureBox, TypeSignatureDate, TypeDropdown, TypeDropdownReference,
	TypeLanguageToggle, TypeLanguageToggleV2, TypePromotionInfo,
}

// Common carries the props every block may have.
type Common struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Width    *float64 `json:"width,omitempty" validate:"omitempty,gte=0"`
	Height   *float64 `json:"height,omitempty" validate:"omitempty,gte=0"`
	Z        float64  `json:"z,omitempty"`
	Color    string   `json:"color,omitempty"`
	Levels   []string `json:"levels,omitempty"`
	BlockID  string   `json:"blockId,omitempty"`
	FontSize float64  `json:"fontSize,omitempty" validate:"gte=0"`
	Bold     bool     `json:"bold,omitempty"`
	Align    string   `json:"align,omitempty" validate:"omitempty,oneof=left center right"`
}

// Positioned reports whether the block has both coordinates. Any other
// block is placed by document flow.
func (c Common) Positioned() bool {
	return c.X != nil && c.Y != nil
}

func (c Common) Pos() (float64, float64) {
	var x, y float64
	if c.X != nil {
		x = *c.X
	}
	if c.Y != nil {
		y = *c.Y
	}
	return x, y
}

// Size returns the block size, falling back to the given defaults.
func (c Common) Size(defW, defH float64) (float64, float64) {
	w, h := defW, defH
	if c.Width != nil {
		w = *c.Width
	}
	if c.Height != nil {
		h = *c.Height
	}
	return w, h
}

// Block is a decoded template block. Props holds the type-specific variant.
type Block struct {
	Type   BlockType
	Common Common
	Props  Props
	raw    []byte
}

// Props is implemented by every block variant.
type Props interface {
	applyDefaults(c *Common)
}

type TextProps struct {
	Text       string  `json:"text"`
	LineHeight float64 `json:"lineHeight,omitempty"`
	Italic     bool    `json:"italic,omitempty"`
}

func (p *TextProps) applyDefaults(c *Common) {
	if p.LineHeight <= 0 {
		p.LineHeight = 1.2
	}
}

type ImageProps struct {
	URL     string  `json:"url" validate:"required"`
	Rounded bool    `json:"rounded,omitempty"`
	Opacity float64 `json:"opacity,omitempty" validate:"gte=0,lte=1"`
}

func (p *ImageProps) applyDefaults(c *Common) {
	if p.Opacity == 0 {
		p.Opacity = 1
	}
}

// ShapeProps covers rect and circle blocks. Color is the fill.
type ShapeProps struct {
	BorderColor string  `json:"borderColor,omitempty"`
	BorderWidth float64 `json:"borderWidth,omitempty" validate:"gte=0"`
	Radius      float64 `json:"radius,omitempty" validate:"gte=0"`
	Opacity     float64 `json:"opacity,omitempty" validate:"gte=0,lte=1"`
}

func (p *ShapeProps) applyDefaults(c *Common) {
	if p.Opacity == 0 {
		p.Opacity = 1
	}
}

// LineProps covers line and arrow blocks. Without X2/Y2 the segment runs
// from (x, y) to (x+width, y+height).
type LineProps struct {
	X2        *float64 `json:"x2,omitempty"`
	Y2        *float64 `json:"y2,omitempty"`
	Thickness float64  `json:"thickness,omitempty" validate:"gte=0"`
	HeadSize  float64  `json:"headSize,omitempty" validate:"gte=0"`
	Dashed    bool     `json:"dashed,omitempty"`
}

func (p *LineProps) applyDefaults(c *Common) {
	if p.Thickness <= 0 {
		p.Thickness = 1
	}
	if p.HeadSize <= 0 {
		p.HeadSize = 10
	}
	if c.Color == "" {
		c.Color = "#000000"
	}
}

type QRProps struct {
	URL  string `json:"url,omitempty"`
	Data string `json:"data,omitempty"`
}

func (p *QRProps) applyDefaults(c *Common) {}

// Payload returns the encoded content, preferring the url prop.
func (p *QRProps) Payload() string {
	if p.URL != "" {
		return p.URL
	}
	return p.Data
}

type TableCell struct {
	Text     string  `json:"text"`
	Fill     string  `json:"fill,omitempty"`
	Color    string  `json:"color,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
	Bold     bool    `json:"bold,omitempty"`
	Align    string  `json:"align,omitempty"`
}

type TableProps struct {
	ColumnWidths        []float64        `json:"columnWidths" validate:"required,min=1,dive,gt=0"`
	RowHeights          []float64        `json:"rowHeights" validate:"dive,gt=0"`
	Cells               [][]TableCell    `json:"cells"`
	RowIDs              []string         `json:"rowIds,omitempty"`
	BorderColor         string           `json:"borderColor,omitempty"`
	BorderWidth         float64          `json:"borderWidth,omitempty" validate:"gte=0"`
	CellPadding         float64          `json:"cellPadding,omitempty" validate:"gte=0"`
	ExpandedRows        bool             `json:"expandedRows,omitempty"`
	ExpandedRowHeight   float64          `json:"expandedRowHeight,omitempty" validate:"gte=0"`
	ExpandedToggleStyle string           `json:"expandedToggleStyle,omitempty" validate:"omitempty,oneof=v1 v2"`
	ExpandedLanguages   []LanguageItem   `json:"expandedLanguages,omitempty"`
	RowLanguages        [][]LanguageItem `json:"rowLanguages,omitempty"`
}

func (p *TableProps) applyDefaults(c *Common) {
	if p.BorderColor == "" {
		p.BorderColor = "#000000"
	}
	if p.BorderWidth == 0 {
		p.BorderWidth = 1
	}
	if p.CellPadding == 0 {
		p.CellPadding = 4
	}
	if p.ExpandedRowHeight <= 0 {
		p.ExpandedRowHeight = 34
	}
	if p.ExpandedToggleStyle == "" {
		p.ExpandedToggleStyle = "v2"
	}
	for len(p.RowHeights) < len(p.Cells) {
		p.RowHeights = append(p.RowHeights, 40)
	}
}

// RowID returns the stable id of a row, or "" when only positional keys apply.
func (p *TableProps) RowID(i int) string {
	if i < len(p.RowIDs) {
		return p.RowIDs[i]
	}
	return ""
}

// DefaultLanguages returns the configured languages for a row.
func (p *TableProps) DefaultLanguages(i int) []LanguageItem {
	if i < len(p.RowLanguages) && len(p.RowLanguages[i]) > 0 {
		return p.RowLanguages[i]
	}
	return p.ExpandedLanguages
}

type StudentInfoProps struct {
	Fields     []string `json:"fields,omitempty" validate:"dive,oneof=name firstName lastName dob class level"`
	ShowLabels bool     `json:"showLabels,omitempty"`
	LineHeight float64  `json:"lineHeight,omitempty" validate:"gte=0"`
}

func (p *StudentInfoProps) applyDefaults(c *Common) {
	if len(p.Fields) == 0 {
		p.Fields = []string{"name", "class", "dob"}
	}
	if p.LineHeight <= 0 {
		p.LineHeight = 20
	}
}

type CategoryTitleProps struct {
	Text       string `json:"text" validate:"required"`
	Background string `json:"background,omitempty"`
}

func (p *CategoryTitleProps) applyDefaults(c *Common) {
	c.Bold = true
	if c.FontSize == 0 {
		c.FontSize = 16
	}
}

type CompetencyItem struct {
	Text   string   `json:"text"`
	Levels []string `json:"levels,omitempty"`
}

type CompetencyListProps struct {
	Items      []CompetencyItem `json:"items"`
	Bullet     string           `json:"bullet,omitempty"`
	LineHeight float64          `json:"lineHeight,omitempty" validate:"gte=0"`
}

func (p *CompetencyListProps) applyDefaults(c *Common) {
	if p.Bullet == "" {
		p.Bullet = "•"
	}
	if p.LineHeight <= 0 {
		p.LineHeight = 18
	}
}

// SignatureProps is a static signing area: a label above a rule.
type SignatureProps struct {
	Label string `json:"label,omitempty"`
}

func (p *SignatureProps) applyDefaults(c *Common) {}

type SignatureBoxProps struct {
	Type        string `json:"type,omitempty" validate:"omitempty,oneof=standard end_of_year"`
	Label       string `json:"label,omitempty"`
	BorderColor string `json:"borderColor,omitempty"`
}

func (p *SignatureBoxProps) applyDefaults(c *Common) {
	if p.Type == "" {
		p.Type = "standard"
	}
	if p.BorderColor == "" {
		p.BorderColor = "#000000"
	}
}

type SignatureDateProps struct {
	Level    string `json:"level,omitempty"`
	Semester int    `json:"semester,omitempty" validate:"omitempty,oneof=1 2"`
	Label    string `json:"label,omitempty"`
}

func (p *SignatureDateProps) applyDefaults(c *Common) {
	if p.Semester == 0 {
		p.Semester = 1
	}
}

type DropdownProps struct {
	DropdownNumber int      `json:"dropdownNumber,omitempty"`
	VariableName   string   `json:"variableName,omitempty"`
	Label          string   `json:"label,omitempty"`
	Options        []string `json:"options,omitempty"`
}

func (p *DropdownProps) applyDefaults(c *Common) {}

// DropdownReferenceProps mirrors the value of another dropdown block.
type DropdownReferenceProps struct {
	DropdownBlockID string `json:"dropdownBlockId,omitempty"`
	DropdownNumber  int    `json:"dropdownNumber,omitempty"`
	VariableName    string `json:"variableName,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
}

func (p *DropdownReferenceProps) applyDefaults(c *Common) {}

type LanguageToggleProps struct {
	Items    []LanguageItem `json:"items"`
	Style    string         `json:"style,omitempty" validate:"omitempty,oneof=v1 v2"`
	IconSize float64        `json:"iconSize,omitempty" validate:"gte=0"`
	Spacing  float64        `json:"spacing,omitempty" validate:"gte=0"`
}

func (p *LanguageToggleProps) applyDefaults(c *Common) {
	if p.IconSize <= 0 {
		p.IconSize = 24
	}
	if p.Spacing <= 0 {
		p.Spacing = 6
	}
}

type PromotionInfoProps struct {
	Field       string `json:"field,omitempty" validate:"omitempty,oneof=level year class from label"`
	TargetLevel string `json:"targetLevel,omitempty"`
	Level       string `json:"level,omitempty"`
	Period      string `json:"period,omitempty"`
	Label       string `json:"label,omitempty"`
}

func (p *PromotionInfoProps) applyDefaults(c *Common) {}

// UnknownProps keeps blocks of unsupported types decodable.
type UnknownProps struct{}

func (p *UnknownProps) applyDefaults(c *Common) {}

func newProps(t BlockType) Props {
	switch t {
	case TypeText, TypeDynamicText:
		return &TextProps{}
	case TypeImage:
		return &ImageProps{}
	case TypeRect, TypeCircle:
		return &ShapeProps{}
	case TypeLine, TypeArrow:
		return &LineProps{}
	case TypeQR:
		return &QRProps{}
	case TypeTable:
		return &TableProps{}
	case TypeStudentInfo:
		return &StudentInfoProps{}
	case TypeCategoryTitle:
		return &CategoryTitleProps{}
	case TypeCompetencyList:
		return &CompetencyListProps{}
	case TypeSignature:
		return &SignatureProps{}
	case TypeSignatureBox:
		return &SignatureBoxProps{}
	case TypeSignatureDate:
		return &SignatureDateProps{}
	case TypeDropdown:
		return &DropdownProps{}
	case TypeDropdownReference:
		return &DropdownReferenceProps{}
	case TypeLanguageToggle, TypeLanguageToggleV2:
		return &LanguageToggleProps{}
	case TypePromotionInfo:
		return &PromotionInfoProps{}
	default:
		return &UnknownProps{}
	}
}
