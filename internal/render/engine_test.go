package render

import (
	"bytes"
	"strings"
	"testing"

	"certmill/internal/models"
	"certmill/internal/pkg/errors"
)

func testTemplate() *models.Template {
	return &models.Template{
		Width:  842,
		Height: 595,
		Elements: []models.Element{
			{
				Text:            "Certificate of {course}",
				FontFamily:      "Helvetica",
				FontSizePx:      32,
				FontWeight:      "bold",
				FillColor:       "#2a2a2a",
				X:               0,
				Y:               120,
				BoxWidthPx:      842,
				HorizontalAlign: models.AlignCenter,
				VerticalAlign:   models.AlignMiddle,
			},
			{
				Text:          "Awarded to {name}",
				FontSizePx:    20,
				X:             100,
				Y:             240,
				BoxWidthPx:    642,
				VerticalAlign: models.AlignTop,
			},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(Config{AssetRoot: "testdata"})
}

// pageCount counts page objects in the produced document. The page tree node
// also matches "/Type /Page", so its own marker is subtracted.
func pageCount(data []byte) int {
	return bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
}

func TestRenderSingleRecord(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	data, err := engine.Render(testTemplate(), []models.Record{{"course": "Go 101", "name": "Ann"}})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatal("output is not a PDF")
	}
	if got := pageCount(data); got != 1 {
		t.Errorf("page count = %d, want 1", got)
	}
}

func TestRenderMultiRecordPageCount(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	records := []models.Record{
		{"course": "Go 101", "name": "Ann"},
		{"course": "Go 101", "name": "Ben"},
		{"course": "Go 101", "name": "Cora"},
	}
	data, err := engine.Render(testTemplate(), records)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := pageCount(data); got != 3 {
		t.Errorf("page count = %d, want 3", got)
	}
}

func TestRenderDeterministic(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	record := models.Record{"course": "Go 101", "name": "Ann"}
	first, err := engine.Render(testTemplate(), []models.Record{record})
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.Render(testTemplate(), []models.Record{record})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same template and record produced different bytes")
	}
}

func TestRenderWithBackground(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	tpl := testTemplate()
	tpl.Background = "background.png"

	data, err := engine.Render(tpl, []models.Record{{"course": "Go", "name": "Ann"}})
	if err != nil {
		t.Fatalf("Render with background: %v", err)
	}
	if got := pageCount(data); got != 1 {
		t.Errorf("page count = %d, want 1", got)
	}
}

func TestRenderMissingBackgroundFails(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	tpl := testTemplate()
	tpl.Background = "does-not-exist.png"

	_, err := engine.Render(tpl, []models.Record{{"name": "Ann"}})
	if err == nil {
		t.Fatal("expected error for missing background")
	}
	if code := errors.GetCode(err); code != errors.CodeRenderFailed {
		t.Errorf("code = %s, want %s", code, errors.CodeRenderFailed)
	}
}

func TestRenderUnsupportedBackgroundIsSkipped(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	// A .txt asset resolves but cannot be embedded; the page still renders.
	tpl := testTemplate()
	tpl.Background = "note.txt"

	data, err := engine.Render(tpl, []models.Record{{"name": "Ann"}})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := pageCount(data); got != 1 {
		t.Errorf("page count = %d, want 1", got)
	}
}

func TestRenderInvalidInput(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	tests := []struct {
		name    string
		tpl     *models.Template
		records []models.Record
	}{
		{"nil template", nil, []models.Record{{}}},
		{"zero width", &models.Template{Width: 0, Height: 100}, []models.Record{{}}},
		{"negative height", &models.Template{Width: 100, Height: -5}, []models.Record{{}}},
		{"no records", testTemplate(), nil},
		{"nil record", testTemplate(), []models.Record{nil}},
		{
			"bad font size",
			&models.Template{Width: 100, Height: 100, Elements: []models.Element{{Text: "x"}}},
			[]models.Record{{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Render(tt.tpl, tt.records)
			if err == nil {
				t.Fatal("expected error")
			}
			if code := errors.GetCode(err); code != errors.CodeValidation {
				t.Errorf("code = %s, want %s", code, errors.CodeValidation)
			}
		})
	}
}

func TestShutdownIdempotent(t *testing.T) {
	engine := newTestEngine(t)

	if err := engine.Shutdown(); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := engine.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}

	_, err := engine.Render(testTemplate(), []models.Record{{"name": "Ann"}})
	if err == nil {
		t.Fatal("expected render after shutdown to fail")
	}
	if code := errors.GetCode(err); code != errors.CodeEngineUnavailable {
		t.Errorf("code = %s, want %s", code, errors.CodeEngineUnavailable)
	}
}

func TestShutdownBeforeFirstUse(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.Shutdown(); err != nil {
		t.Fatalf("Shutdown before use: %v", err)
	}
}

func TestFontStyle(t *testing.T) {
	tests := []struct {
		el   models.Element
		want string
	}{
		{models.Element{}, ""},
		{models.Element{FontWeight: "bold"}, "B"},
		{models.Element{FontWeight: "700"}, "B"},
		{models.Element{FontWeight: "400"}, ""},
		{models.Element{FontStyle: "italic"}, "I"},
		{models.Element{TextDecoration: "underline"}, "U"},
		{models.Element{FontWeight: "bold", FontStyle: "italic", TextDecoration: "underline"}, "BIU"},
	}
	for _, tt := range tests {
		if got := fontStyle(tt.el); got != tt.want {
			t.Errorf("fontStyle(%+v) = %q, want %q", tt.el, got, tt.want)
		}
	}
}

func TestCoreFont(t *testing.T) {
	tests := map[string]string{
		"Helvetica":       "Helvetica",
		"Arial":           "Helvetica",
		"":                "Helvetica",
		"Times New Roman": "Times",
		"PT Serif":        "Times",
		"Courier New":     "Courier",
		"JetBrains Mono":  "Courier",
	}
	for family, want := range tests {
		if got := coreFont(family); got != want {
			t.Errorf("coreFont(%q) = %q, want %q", family, got, want)
		}
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b int
	}{
		{"#ff0000", 255, 0, 0},
		{"#00FF7f", 0, 255, 127},
		{"#abc", 170, 187, 204},
		{"2a2a2a", 42, 42, 42},
		{"", 0, 0, 0},
		{"#nothex", 0, 0, 0},
	}
	for _, tt := range tests {
		r, g, b := parseHexColor(tt.in)
		if r != tt.r || g != tt.g || b != tt.b {
			t.Errorf("parseHexColor(%q) = (%d,%d,%d), want (%d,%d,%d)", tt.in, r, g, b, tt.r, tt.g, tt.b)
		}
	}
}

func TestCellAlign(t *testing.T) {
	tests := []struct {
		h, v string
		want string
	}{
		{models.AlignLeft, models.AlignTop, "LT"},
		{models.AlignCenter, models.AlignMiddle, "CM"},
		{models.AlignRight, models.AlignBottom, "RB"},
		{"", "", "LT"},
	}
	for _, tt := range tests {
		got := cellAlign(BoxStyle{HAlign: tt.h, VAlign: tt.v})
		if got != tt.want {
			t.Errorf("cellAlign(%q,%q) = %q, want %q", tt.h, tt.v, got, tt.want)
		}
	}
}

func TestRenderTextContainsResolvedValues(t *testing.T) {
	engine := newTestEngine(t)
	defer engine.Shutdown()

	// Core-font text is written unencrypted into the content stream when
	// compression is off; with compression on we can at least assert the
	// document structure is present.
	tpl := testTemplate()
	data, err := engine.Render(tpl, []models.Record{{"course": "Go 101", "name": "Ann"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Helvetica") {
		t.Error("expected core font reference in document")
	}
}
