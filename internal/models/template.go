package models

// Alignment values accepted for text elements.
const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"

	AlignTop    = "top"
	AlignMiddle = "middle"
	AlignBottom = "bottom"
)

// Template is a fixed-size visual layout. Width/height are in pixels and
// define the page size of every rendered document. Elements are drawn in
// slice order.
type Template struct {
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Background string    `json:"background,omitempty"`
	Elements   []Element `json:"elements"`
}

// Element is a positioned text box. Text may contain {field} tokens that are
// resolved against a record before drawing. X/Y may be negative.
type Element struct {
	Text            string  `json:"text"`
	FontFamily      string  `json:"fontFamily,omitempty"`
	FontSizePx      float64 `json:"fontSizePx"`
	FontWeight      string  `json:"fontWeight,omitempty"`
	FontStyle       string  `json:"fontStyle,omitempty"`
	TextDecoration  string  `json:"textDecoration,omitempty"`
	FillColor       string  `json:"fillColor,omitempty"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	BoxWidthPx      float64 `json:"boxWidthPx"`
	HorizontalAlign string  `json:"horizontalAlign,omitempty"`
	VerticalAlign   string  `json:"verticalAlign,omitempty"`
}
