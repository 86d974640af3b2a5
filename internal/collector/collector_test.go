package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genbatch/internal/domain"
	"genbatch/internal/storage"
)

func setup(t *testing.T) (string, string, *Collector) {
	t.Helper()
	out := t.TempDir()
	dest := t.TempDir()
	store, err := storage.NewFileStore(dest)
	require.NoError(t, err)
	c, err := New(Options{OutputDir: out, Store: store})
	require.NoError(t, err)
	return out, dest, c
}

func writeFile(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestCollectReportedFileAndOverwrite(t *testing.T) {
	out, dest, c := setup(t)
	now := time.Now()
	writeFile(t, filepath.Join(out, "run", "bc_0001_a1_00001_.png"), "first", now)

	ref := domain.ArtifactRef{
		JobID:       "job-1",
		Prefix:      "bc_0001_a1",
		SubmittedAt: now,
		Files:       []domain.OutputFile{{Filename: "bc_0001_a1_00001_.png", Subfolder: "run", Type: "output"}},
	}
	path, err := c.Collect(context.Background(), ref, "business_cards_premium")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "products", "business_cards_premium_ai_generated.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	_, err = os.Stat(filepath.Join(out, "run", "bc_0001_a1_00001_.png"))
	assert.NoError(t, err, "source must be copied, not moved")

	writeFile(t, filepath.Join(out, "run", "bc_0002_a1_00001_.png"), "second", now)
	ref.Prefix = "bc_0002_a1"
	ref.Files[0].Filename = "bc_0002_a1_00001_.png"
	path2, err := c.Collect(context.Background(), ref, "business_cards_premium")
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	data, err = os.ReadFile(path2)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestCollectScansByPrefixNewestFirst(t *testing.T) {
	out, _, c := setup(t)
	submitted := time.Now().Add(-time.Minute)
	writeFile(t, filepath.Join(out, "banners_0003_a1_00001_.png"), "older", submitted.Add(10*time.Second))
	writeFile(t, filepath.Join(out, "nested", "banners_0003_a1_00002_.png"), "newer", submitted.Add(20*time.Second))
	writeFile(t, filepath.Join(out, "banners_0003_a1_00003_.png"), "stale", submitted.Add(-time.Hour))
	writeFile(t, filepath.Join(out, "banners_0004_a1_00001_.png"), "other", submitted.Add(30*time.Second))

	ref := domain.ArtifactRef{JobID: "job-3", Prefix: "banners_0003_a1", SubmittedAt: submitted}
	path, err := c.Collect(context.Background(), ref, "Banners Premium")
	require.NoError(t, err)
	assert.Equal(t, "banners_premium_ai_generated.png", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "newer", string(data))
}

func TestCollectDoesNotMatchLongerAttemptPrefix(t *testing.T) {
	out, _, c := setup(t)
	submitted := time.Now().Add(-time.Minute)
	writeFile(t, filepath.Join(out, "p_0001_a1_00001_.png"), "mine", submitted.Add(time.Second))
	writeFile(t, filepath.Join(out, "p_0001_a10_00001_.png"), "other", submitted.Add(10*time.Second))

	path, err := c.Collect(context.Background(), domain.ArtifactRef{JobID: "j", Prefix: "p_0001_a1", SubmittedAt: submitted}, "p")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
}

func TestGlobMatcherAnchorsOnSeparator(t *testing.T) {
	out := t.TempDir()
	now := time.Now()
	for _, name := range []string{"p_0001_a1_00001_.png", "p_0001_a10_00001_.png", "p_0001_a1.png", "sub/p_0001_a1_00002_.jpg"} {
		writeFile(t, filepath.Join(out, filepath.FromSlash(name)), "x", now)
	}
	got, err := GlobMatcher{}.Match(out, "p_0001_a1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p_0001_a1_00001_.png", "sub/p_0001_a1_00002_.jpg"}, got)
}

func TestCollectIgnoresFilesOlderThanSubmission(t *testing.T) {
	out, _, c := setup(t)
	submitted := time.Now()
	writeFile(t, filepath.Join(out, "p_0001_a1_00001_.png"), "old", submitted.Add(-time.Hour))

	_, err := c.Collect(context.Background(), domain.ArtifactRef{JobID: "j", Prefix: "p_0001_a1", SubmittedAt: submitted}, "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)
	var ce *CollectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindNotFound, ce.Kind)
}

func TestCollectFallsBackWhenReportedFileMissing(t *testing.T) {
	out, _, c := setup(t)
	now := time.Now()
	writeFile(t, filepath.Join(out, "x_0001_a2_00001_.webp"), "img", now)

	ref := domain.ArtifactRef{
		JobID:       "j",
		Prefix:      "x_0001_a2",
		SubmittedAt: now,
		Files:       []domain.OutputFile{{Filename: "gone.png"}},
	}
	path, err := c.Collect(context.Background(), ref, "x")
	require.NoError(t, err)
	assert.Equal(t, ".webp", filepath.Ext(path))
}

func TestCollectIOFailure(t *testing.T) {
	out, _, c := setup(t)
	now := time.Now()
	writeFile(t, filepath.Join(out, "y_0001_a1_00001_.png"), "img", now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Collect(ctx, domain.ArtifactRef{JobID: "j", Prefix: "y_0001_a1", SubmittedAt: now}, "y")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrArtifactIO)
}

func TestProductLayout(t *testing.T) {
	assert.Equal(t, "products/business_cards_premium_ai_generated.png", ProductLayout{Subdir: "products"}.Key("business cards_premium", ".PNG"))
	assert.Equal(t, "real_estate_flyers_ai_generated.jpg", ProductLayout{}.Key("Real Estate Flyers", ".jpg"))
}

func TestNewRequiresDirs(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
