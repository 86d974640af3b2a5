// Package collector copies the output of completed jobs into the destination
// asset tree.
package collector

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"genbatch/internal/domain"
	"genbatch/internal/infra"
	"genbatch/internal/storage"
)

const defaultSlack = time.Second

// Options configures a Collector.
type Options struct {
	// OutputDir is the backend's output root.
	OutputDir string
	Store     *storage.FileStore
	// Layout defaults to ProductLayout{Subdir: "products"}.
	Layout  Layout
	Matcher Matcher
	// Slack widens the modification-time window for scanned files.
	Slack  time.Duration
	Logger *infra.Logger
}

// Collector resolves and copies artifacts.
type Collector struct {
	outputDir string
	store     *storage.FileStore
	layout    Layout
	matcher   Matcher
	slack     time.Duration
	logger    infra.Logger
}

func New(opts Options) (*Collector, error) {
	if opts.OutputDir == "" {
		return nil, errors.New("collector: output dir is required")
	}
	if opts.Store == nil {
		return nil, errors.New("collector: store is required")
	}
	c := &Collector{
		outputDir: opts.OutputDir,
		store:     opts.Store,
		layout:    opts.Layout,
		matcher:   opts.Matcher,
		slack:     opts.Slack,
		logger:    infra.DiscardLogger(),
	}
	if c.layout == nil {
		c.layout = ProductLayout{Subdir: "products"}
	}
	if c.matcher == nil {
		c.matcher = GlobMatcher{}
	}
	if c.slack <= 0 {
		c.slack = defaultSlack
	}
	if opts.Logger != nil {
		c.logger = *opts.Logger
	}
	return c, nil
}

// Collect copies the artifact of ref to the location derived from
// destinationName and returns the absolute destination path. The source file
// is left in place; an existing destination file is replaced.
func (c *Collector) Collect(ctx context.Context, ref domain.ArtifactRef, destinationName string) (string, error) {
	src, err := c.resolve(ref)
	if err != nil {
		return "", err
	}

	key := c.layout.Key(destinationName, filepath.Ext(src))
	stored, err := c.store.Copy(ctx, key, src)
	if err != nil {
		return "", &CollectError{JobID: ref.JobID, Prefix: ref.Prefix, Kind: KindIOFailure, Cause: err}
	}
	dest, err := c.store.Path(stored)
	if err != nil {
		return "", &CollectError{JobID: ref.JobID, Prefix: ref.Prefix, Kind: KindIOFailure, Cause: err}
	}
	c.logger.Debug().
		Str("job_id", ref.JobID).
		Str("source", src).
		Str("dest", dest).
		Msg("collector: artifact copied")
	return dest, nil
}

// resolve prefers files reported by the backend and falls back to scanning
// the output root for the newest file carrying the prefix.
func (c *Collector) resolve(ref domain.ArtifactRef) (string, error) {
	for _, f := range ref.Files {
		if f.Filename == "" {
			continue
		}
		p := filepath.Join(c.outputDir, filepath.FromSlash(f.Subfolder), f.Filename)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}

	if ref.Prefix == "" {
		return "", &CollectError{JobID: ref.JobID, Kind: KindNotFound, Cause: errors.New("no prefix to match")}
	}
	matches, err := c.matcher.Match(c.outputDir, ref.Prefix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &CollectError{JobID: ref.JobID, Prefix: ref.Prefix, Kind: KindNotFound, Cause: err}
		}
		return "", &CollectError{JobID: ref.JobID, Prefix: ref.Prefix, Kind: KindIOFailure, Cause: err}
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var cands []candidate
	var cutoff time.Time
	if !ref.SubmittedAt.IsZero() {
		cutoff = ref.SubmittedAt.Add(-c.slack)
	}
	for _, m := range matches {
		p := filepath.Join(c.outputDir, filepath.FromSlash(m))
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			continue
		}
		cands = append(cands, candidate{path: p, mod: info.ModTime()})
	}
	if len(cands) == 0 {
		return "", &CollectError{JobID: ref.JobID, Prefix: ref.Prefix, Kind: KindNotFound}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].mod.Equal(cands[j].mod) {
			return cands[i].path > cands[j].path
		}
		return cands[i].mod.After(cands[j].mod)
	})
	return cands[0].path, nil
}
