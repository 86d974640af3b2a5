package workflow

import (
	"fmt"
	"strings"
)

var baseTemplates = []string{
	"Professional commercial photography of %[1]s, %[2]s quality, clean white background, studio lighting, detailed",
	"High-end product photography of %[1]s, %[2]s finish, professional lighting, commercial style, clean background",
	"Studio photograph of %[1]s, %[2]s grade, professional presentation, white background, detailed view",
	"Commercial product shot of %[1]s, %[2]s quality, professional lighting, clean presentation, high resolution",
	"Professional %[1]s photography, %[2]s finish, studio lighting, commercial grade, white background",
}

// TemplateCount is the number of built-in prompt templates.
func TemplateCount() int {
	return len(baseTemplates)
}

// Request is the builder input carried opaquely inside a JobSpec.
type Request struct {
	Product  string
	Category string
	Variant  string
	Keywords string
	// Prompt overrides template rendering when set.
	Prompt   string
	Negative string
	Template int
}

// PositivePrompt renders the text prompt for r.
func (r Request) PositivePrompt() string {
	if p := strings.TrimSpace(r.Prompt); p != "" {
		return p
	}
	product := strings.TrimSpace(r.Product)
	if product == "" {
		product = "printed products"
	}
	variant := strings.TrimSpace(r.Variant)
	if variant == "" {
		variant = "standard"
	}
	idx := r.Template % len(baseTemplates)
	if idx < 0 {
		idx += len(baseTemplates)
	}
	prompt := fmt.Sprintf(baseTemplates[idx], product, variant)
	if kw := strings.TrimSpace(r.Keywords); kw != "" {
		prompt += ", " + kw
	}
	return prompt
}
