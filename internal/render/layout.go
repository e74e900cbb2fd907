package render

import "certmill/internal/models"

// Line-height factors. Middle/bottom aligned boxes get an explicit height of
// fontSize×1.3 so the text can be anchored inside it; top-aligned boxes flow
// naturally with a 1.35em line height. The asymmetry is intentional and
// matches the template editor's preview.
const (
	boxHeightFactor  = 1.3
	lineHeightFactor = 1.35
)

// BoxStyle is the absolute box an element occupies on the page, plus the
// anchoring of its single line of text. Text never wraps; overflow is drawn
// beyond the box.
type BoxStyle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64

	// HAlign/VAlign are models.Align* values.
	HAlign string
	VAlign string
}

// Layout computes the box for one element on the given template. It is pure:
// same element and template always yield the same box.
func Layout(el models.Element, tpl *models.Template) BoxStyle {
	width := el.BoxWidthPx
	if width <= 0 || width > float64(tpl.Width) {
		width = float64(tpl.Width)
	}

	box := BoxStyle{
		X:      el.X,
		Y:      el.Y,
		Width:  width,
		HAlign: el.HorizontalAlign,
		VAlign: el.VerticalAlign,
	}
	if box.HAlign == "" {
		box.HAlign = models.AlignLeft
	}

	switch el.VerticalAlign {
	case models.AlignMiddle, models.AlignBottom:
		box.Height = el.FontSizePx * boxHeightFactor
	default:
		box.VAlign = models.AlignTop
		box.Height = el.FontSizePx * lineHeightFactor
	}
	return box
}
