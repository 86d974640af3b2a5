// Package catalog loads product records and expands them into job specs.
package catalog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"genbatch/internal/domain"
	"genbatch/internal/workflow"
)

// Record is one product/variant to photograph.
type Record struct {
	Name        string
	Category    string
	Variant     string
	Description string
	Keywords    string
	// Prompt is a fully rendered prompt; when set templates are skipped.
	Prompt string
	// Destination overrides the derived <name>_<variant> destination name.
	Destination string
	Pipeline    string
}

// DestinationName is the collector-facing name of the record.
func (r Record) DestinationName() string {
	if r.Destination != "" {
		return r.Destination
	}
	if r.Variant == "" {
		return r.Name
	}
	return r.Name + "_" + r.Variant
}

// ErrEmptyCatalog is returned when a source yields no records.
var ErrEmptyCatalog = errors.New("catalog: no records")

// DefaultProducts is used when no catalog file is configured.
func DefaultProducts() []Record {
	return []Record{
		{Name: "business cards", Category: "business-cards", Variant: "premium", Keywords: "professional, corporate"},
		{Name: "real estate flyers", Category: "flyers", Variant: "standard", Keywords: "property, marketing"},
		{Name: "banners", Category: "banners", Variant: "premium", Keywords: "advertising, promotional"},
		{Name: "brochures", Category: "brochures", Variant: "standard", Keywords: "informational, tri-fold"},
		{Name: "postcards", Category: "postcards", Variant: "standard", Keywords: "direct mail, marketing"},
	}
}

// Load reads a catalog file, picking the format from its extension.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(f)
	case ".json":
		return LoadJSON(f)
	default:
		return nil, fmt.Errorf("catalog: unsupported file type %q", filepath.Ext(path))
	}
}

// LoadCSV reads rows with a header naming any of name, category, variant,
// description, keywords and prompt. Rows without a name are skipped.
func LoadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCatalog
		}
		return nil, fmt.Errorf("catalog: read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, errors.New("catalog: csv header missing name column")
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: read row: %w", err)
		}
		rec := Record{
			Name:        field(row, "name"),
			Category:    field(row, "category"),
			Variant:     field(row, "variant"),
			Description: field(row, "description"),
			Keywords:    field(row, "keywords"),
			Prompt:      field(row, "prompt"),
		}
		if rec.Name == "" {
			continue
		}
		if rec.Variant == "" {
			rec.Variant = "standard"
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, ErrEmptyCatalog
	}
	return out, nil
}

type jsonProduct struct {
	ProductID       string       `json:"product_id"`
	BaseDescription string       `json:"base_description"`
	Pipeline        string       `json:"generation_pipeline"`
	Options         []jsonOption `json:"options"`
}

type jsonOption struct {
	Name     string        `json:"name"`
	Variants []jsonVariant `json:"variants"`
}

type jsonVariant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Keywords string `json:"generation_keywords"`
}

// LoadJSON reads structured products and expands every combination of option
// variants into its own record.
func LoadJSON(r io.Reader) ([]Record, error) {
	var products []jsonProduct
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("catalog: decode json: %w", err)
	}

	var out []Record
	for _, p := range products {
		if p.ProductID == "" {
			continue
		}
		for _, combo := range combinations(p.Options) {
			prompt := []string{p.BaseDescription}
			file := []string{p.ProductID}
			names := make([]string, 0, len(combo))
			for _, v := range combo {
				prompt = append(prompt, v.Keywords)
				file = append(file, v.ID)
				names = append(names, v.Name)
			}
			out = append(out, Record{
				Name:        p.ProductID,
				Category:    p.ProductID,
				Variant:     strings.Join(names, "+"),
				Description: p.BaseDescription,
				Prompt:      strings.Join(prompt, ", "),
				Destination: strings.Join(file, "_"),
				Pipeline:    p.Pipeline,
			})
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyCatalog
	}
	return out, nil
}

// combinations returns the cartesian product of the option variants. An
// option with no variants contributes nothing; no options yields one empty
// combination.
func combinations(options []jsonOption) [][]jsonVariant {
	combos := [][]jsonVariant{{}}
	for _, opt := range options {
		if len(opt.Variants) == 0 {
			continue
		}
		next := make([][]jsonVariant, 0, len(combos)*len(opt.Variants))
		for _, c := range combos {
			for _, v := range opt.Variants {
				combo := make([]jsonVariant, len(c), len(c)+1)
				copy(combo, c)
				next = append(next, append(combo, v))
			}
		}
		combos = next
	}
	return combos
}

// Specs cycles through records and prompt templates until target specs are
// produced. A non-positive target yields one spec per record. Destination
// names are unique within the result.
func Specs(records []Record, target int) []domain.JobSpec {
	if len(records) == 0 {
		return nil
	}
	if target <= 0 {
		target = len(records)
	}
	specs := make([]domain.JobSpec, 0, target)
	seen := make(map[string]int, target)
	for i := 0; i < target; i++ {
		rec := records[i%len(records)]
		dest := rec.DestinationName()
		seen[dest]++
		if n := seen[dest]; n > 1 {
			dest = fmt.Sprintf("%s_%d", dest, n)
		}
		specs = append(specs, domain.JobSpec{
			ID:          uuid.NewString(),
			Destination: dest,
			Request: workflow.Request{
				Product:  rec.Name,
				Category: rec.Category,
				Variant:  rec.Variant,
				Keywords: rec.Keywords,
				Prompt:   rec.Prompt,
				Template: i % workflow.TemplateCount(),
			},
		})
	}
	return specs
}
