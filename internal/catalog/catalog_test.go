package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genbatch/internal/workflow"
)

func TestLoadCSV(t *testing.T) {
	src := "name,category,variant,description,keywords\n" +
		"business cards,business-cards,premium,Thick stock,\"professional, corporate\"\n" +
		"banners,banners,,Vinyl,advertising\n" +
		",missing,name,,\n"

	recs, err := LoadCSV(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "professional, corporate", recs[0].Keywords)
	assert.Equal(t, "standard", recs[1].Variant)
	assert.Equal(t, "banners_standard", recs[1].DestinationName())
}

func TestLoadCSVRequiresNameColumn(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("title,variant\nfoo,bar\n"))
	assert.Error(t, err)

	_, err = LoadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestLoadJSONExpandsVariants(t *testing.T) {
	src := `[{
		"product_id": "flyer",
		"base_description": "a glossy flyer",
		"generation_pipeline": "sd15",
		"options": [
			{"name": "size", "variants": [
				{"id": "a4", "name": "A4", "generation_keywords": "a4 size"},
				{"id": "a5", "name": "A5", "generation_keywords": "a5 size"}
			]},
			{"name": "finish", "variants": [
				{"id": "matte", "name": "Matte", "generation_keywords": "matte finish"},
				{"id": "gloss", "name": "Gloss", "generation_keywords": "gloss finish"}
			]}
		]
	}]`

	recs, err := LoadJSON(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "a glossy flyer, a4 size, matte finish", recs[0].Prompt)
	assert.Equal(t, "flyer_a4_matte", recs[0].DestinationName())
	assert.Equal(t, "A4+Matte", recs[0].Variant)
	assert.Equal(t, "flyer_a5_gloss", recs[3].DestinationName())
	assert.Equal(t, "sd15", recs[3].Pipeline)
}

func TestLoadDispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")
	require.NoError(t, os.WriteFile(path, []byte("name\npostcards\n"), 0o644))

	recs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	_, err = Load(filepath.Join(dir, "products.yaml"))
	assert.Error(t, err)
}

func TestSpecsCyclesRecordsAndDedupes(t *testing.T) {
	recs := DefaultProducts()
	specs := Specs(recs, 12)
	require.Len(t, specs, 12)

	dests := map[string]bool{}
	ids := map[string]bool{}
	for i, s := range specs {
		assert.False(t, dests[s.Destination], "duplicate destination %s", s.Destination)
		dests[s.Destination] = true
		assert.False(t, ids[s.ID])
		ids[s.ID] = true

		req, ok := s.Request.(workflow.Request)
		require.True(t, ok)
		assert.Equal(t, i%workflow.TemplateCount(), req.Template)
	}
	assert.Equal(t, "business cards_premium", specs[0].Destination)
	assert.Equal(t, "business cards_premium_2", specs[5].Destination)
	assert.Equal(t, "business cards_premium_3", specs[10].Destination)

	assert.Len(t, Specs(recs, 0), len(recs))
	assert.Nil(t, Specs(nil, 3))
}
