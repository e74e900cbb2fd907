// Package template parses and validates certificate template definitions.
//
// Definitions arrive as JSON (the templates table stores them in a
// definition_json column). They are checked against an embedded JSON Schema
// before decoding so malformed definitions surface as validation errors
// instead of half-rendered pages.
package template

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"certmill/internal/models"
	"certmill/internal/pkg/errors"
)

const definitionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["width", "height", "elements"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string"},
    "width": {"type": "integer", "exclusiveMinimum": 0},
    "height": {"type": "integer", "exclusiveMinimum": 0},
    "background": {"type": "string"},
    "elements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["text", "fontSizePx"],
        "properties": {
          "text": {"type": "string"},
          "fontFamily": {"type": "string"},
          "fontSizePx": {"type": "number", "exclusiveMinimum": 0},
          "fontWeight": {"type": "string"},
          "fontStyle": {"type": "string"},
          "textDecoration": {"type": "string"},
          "fillColor": {"type": "string"},
          "x": {"type": "number"},
          "y": {"type": "number"},
          "boxWidthPx": {"type": "number", "minimum": 0},
          "horizontalAlign": {"enum": ["left", "center", "right"]},
          "verticalAlign": {"enum": ["top", "middle", "bottom"]}
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("template-definition.json", definitionSchema)

// Parse validates a raw JSON definition and decodes it into a Template.
// Schema violations and unparseable JSON are reported as VALIDATION_ERROR.
func Parse(definition []byte) (*models.Template, error) {
	var doc any
	if err := json.Unmarshal(definition, &doc); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "template.parse", "definition is not valid json")
	}

	if err := compiledSchema.Validate(doc); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "template.parse", "definition violates template schema")
	}

	var tpl models.Template
	if err := json.Unmarshal(definition, &tpl); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "template.parse", "definition does not decode")
	}

	normalize(&tpl)
	return &tpl, nil
}

// normalize fills alignment defaults and clamps element boxes to the page.
func normalize(tpl *models.Template) {
	for i := range tpl.Elements {
		el := &tpl.Elements[i]
		if el.HorizontalAlign == "" {
			el.HorizontalAlign = models.AlignLeft
		}
		if el.VerticalAlign == "" {
			el.VerticalAlign = models.AlignTop
		}
		if el.BoxWidthPx <= 0 || el.BoxWidthPx > float64(tpl.Width) {
			el.BoxWidthPx = float64(tpl.Width)
		}
		el.FontFamily = strings.TrimSpace(el.FontFamily)
	}
}
