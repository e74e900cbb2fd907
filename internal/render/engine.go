package render

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jung-kurt/gofpdf"

	"certmill/internal/models"
	"certmill/internal/pkg/errors"
	"certmill/internal/pkg/logger"
)

// DefaultParallelism is the number of render slots when none is configured.
const DefaultParallelism = 2

// MaxParallelism caps the render slots to bound resource pressure.
const MaxParallelism = 16

// fixedCreationDate pins the PDF creation date so that rendering the same
// template and record twice yields identical bytes.
var fixedCreationDate = time.Unix(0, 0).UTC()

// Config configures the render engine.
type Config struct {
	// AssetRoot is the directory template asset references resolve under.
	AssetRoot string
	// Parallelism is the number of renders allowed in flight at once.
	// Defaults to DefaultParallelism, clamped to [1, MaxParallelism].
	Parallelism int
	Log         *logger.Logger
}

// Engine renders templates into fixed-page-size PDF documents, one page per
// record. It owns the shared render state (the sandboxed asset store),
// created lazily on first use and reused by every render until Shutdown.
// Each Render call opens its own document, so renders may run in parallel up
// to the configured slot count.
type Engine struct {
	slots chan struct{}
	log   *logger.Logger
	root  string

	mu     sync.Mutex
	assets *AssetStore
	closed bool
}

// NewEngine creates an engine. The shared asset store is not touched until
// the first Render call.
func NewEngine(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault()
	}

	n := cfg.Parallelism
	if n <= 0 {
		n = DefaultParallelism
	}
	if n > MaxParallelism {
		n = MaxParallelism
	}

	return &Engine{
		slots: make(chan struct{}, n),
		log:   log.WithComponent("render"),
		root:  cfg.AssetRoot,
	}
}

// Render produces one PDF with a page per record. A single record yields a
// one-page document; the single and bulk paths share this implementation.
func (e *Engine) Render(tpl *models.Template, records []models.Record) ([]byte, error) {
	if err := validateInput(tpl, records); err != nil {
		return nil, err
	}

	assets, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer e.release()

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: float64(tpl.Width), Ht: float64(tpl.Height)},
	})
	defer pdf.Close()

	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCellMargin(0)
	pdf.SetCreationDate(fixedCreationDate)

	for _, record := range records {
		if err := e.renderPage(pdf, assets, tpl, record); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.RenderFailed(err, "pdf extraction failed")
	}
	return buf.Bytes(), nil
}

// renderPage draws one record onto a fresh page.
func (e *Engine) renderPage(pdf *gofpdf.Fpdf, assets *AssetStore, tpl *models.Template, record models.Record) error {
	pdf.AddPage()

	if tpl.Background != "" {
		// Background refs may carry {field} tokens too.
		ref := Resolve(tpl.Background, record)
		if err := e.drawBackground(pdf, assets, tpl, ref); err != nil {
			return err
		}
	}

	for _, el := range tpl.Elements {
		e.drawElement(pdf, tpl, el, record)
	}

	if err := pdf.Error(); err != nil {
		return errors.RenderFailed(err, "page composition failed")
	}
	return nil
}

// drawBackground paints the background image scaled to cover the page and
// centered. A missing file fails the render for this record; an asset of a
// type the PDF writer cannot embed is skipped so the rest of the page still
// renders.
func (e *Engine) drawBackground(pdf *gofpdf.Fpdf, assets *AssetStore, tpl *models.Template, ref string) error {
	data, contentType, err := assets.Resolve(ref)
	if err != nil {
		return errors.RenderFailed(err, "background asset unavailable")
	}

	imageType := pdfImageType(contentType)
	if imageType == "" {
		e.log.Warn("skipping background with unsupported content type",
			"ref", ref,
			"content_type", contentType,
		)
		return nil
	}

	opts := gofpdf.ImageOptions{ImageType: imageType}
	info := pdf.RegisterImageOptionsReader(ref, opts, bytes.NewReader(data))
	if info == nil || info.Width() <= 0 || info.Height() <= 0 {
		e.log.Warn("skipping unreadable background image", "ref", ref)
		return nil
	}

	pageW, pageH := float64(tpl.Width), float64(tpl.Height)
	scale := pageW / info.Width()
	if s := pageH / info.Height(); s > scale {
		scale = s
	}
	w, h := info.Width()*scale, info.Height()*scale
	pdf.ImageOptions(ref, (pageW-w)/2, (pageH-h)/2, w, h, false, opts, 0, "")
	return nil
}

// drawElement draws one resolved text element at its computed box.
func (e *Engine) drawElement(pdf *gofpdf.Fpdf, tpl *models.Template, el models.Element, record models.Record) {
	box := Layout(el, tpl)
	text := Resolve(el.Text, record)

	pdf.SetFont(coreFont(el.FontFamily), fontStyle(el), el.FontSizePx)
	r, g, b := parseHexColor(el.FillColor)
	pdf.SetTextColor(r, g, b)

	pdf.SetXY(box.X, box.Y)
	pdf.CellFormat(box.Width, box.Height, text, "", 0, cellAlign(box), false, 0, "")
}

// Shutdown releases the shared render state. Safe to call repeatedly or
// before first use. Renders after shutdown fail with ENGINE_UNAVAILABLE.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.assets != nil {
		e.assets.Clear()
		e.assets = nil
	}
	e.log.Info("render engine shut down")
	return nil
}

// acquire takes a render slot and returns the shared asset store, creating
// it on first use.
func (e *Engine) acquire() (*AssetStore, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.EngineUnavailable("render engine is shut down")
	}
	if e.assets == nil {
		e.assets = NewAssetStore(e.root)
		e.log.Debug("asset store initialized", "root", e.root)
	}
	assets := e.assets
	e.mu.Unlock()

	e.slots <- struct{}{}
	return assets, nil
}

func (e *Engine) release() {
	<-e.slots
}

func validateInput(tpl *models.Template, records []models.Record) error {
	switch {
	case tpl == nil:
		return errors.Validation("template is required")
	case tpl.Width <= 0 || tpl.Height <= 0:
		return errors.Validationf("template dimensions must be positive, got %dx%d", tpl.Width, tpl.Height)
	case len(records) == 0:
		return errors.Validation("at least one record is required")
	}
	for i, r := range records {
		if r == nil {
			return errors.Validationf("record %d is nil", i)
		}
	}
	for i, el := range tpl.Elements {
		if el.FontSizePx <= 0 {
			return errors.Validationf("element %d has non-positive font size", i)
		}
	}
	return nil
}

// pdfImageType maps an asset content type to the image type the PDF writer
// understands. WEBP and SVG backgrounds are recognized by the asset store
// but cannot be embedded, so they map to "".
func pdfImageType(contentType string) string {
	switch contentType {
	case "image/png":
		return "PNG"
	case "image/jpeg":
		return "JPG"
	case "image/gif":
		return "GIF"
	default:
		return ""
	}
}

// coreFont maps a template font family onto the built-in PDF core fonts.
func coreFont(family string) string {
	f := strings.ToLower(family)
	switch {
	case strings.Contains(f, "times") || strings.Contains(f, "serif") && !strings.Contains(f, "sans"):
		return "Times"
	case strings.Contains(f, "courier") || strings.Contains(f, "mono"):
		return "Courier"
	default:
		return "Helvetica"
	}
}

// fontStyle builds the style string from weight, style and decoration.
func fontStyle(el models.Element) string {
	var style string
	w := strings.ToLower(el.FontWeight)
	if w == "bold" || w == "bolder" {
		style += "B"
	} else if n, err := strconv.Atoi(w); err == nil && n >= 600 {
		style += "B"
	}
	if s := strings.ToLower(el.FontStyle); s == "italic" || s == "oblique" {
		style += "I"
	}
	if strings.Contains(strings.ToLower(el.TextDecoration), "underline") {
		style += "U"
	}
	return style
}

// cellAlign converts a box's anchoring to a cell alignment string.
func cellAlign(box BoxStyle) string {
	align := "L"
	switch box.HAlign {
	case models.AlignCenter:
		align = "C"
	case models.AlignRight:
		align = "R"
	}
	switch box.VAlign {
	case models.AlignMiddle:
		return align + "M"
	case models.AlignBottom:
		return align + "B"
	default:
		return align + "T"
	}
}

// parseHexColor parses #RGB and #RRGGBB fill colors, defaulting to black.
func parseHexColor(s string) (int, int, int) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16), int(v >> 8 & 0xff), int(v & 0xff)
}
