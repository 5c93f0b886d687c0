// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package grid

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/jobgrid/internal/ctxlog"
	"github.com/vk/jobgrid/internal/fsutil"
	"golang.org/x/sync/errgroup"
)

// gridSchema is the top-level structure of a grid file.
var gridSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "job", LabelNames: []string{"kind", "name"}},
		{Type: "scheduler"},
	},
}

type hclJob struct {
	Requires  []string      `hcl:"requires,optional"`
	Critical  *bool         `hcl:"critical,optional"`
	Forever   *bool         `hcl:"forever,optional"`
	Arguments *hclArguments `hcl:"arguments,block"`
}

type hclArguments struct {
	Body hcl.Body `hcl:",remain"`
}

type hclScheduler struct {
	Timeout *string `hcl:"timeout,optional"`
	Window  *int    `hcl:"window,optional"`
	Label   *string `hcl:"label,optional"`
}

// Loader reads grid files.
type Loader struct {
	env         map[string]string
	parallelism int
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnv sets the variables exposed as env.* to grid expressions. By default
// the loader exposes the process environment.
func WithEnv(env map[string]string) LoaderOption {
	return func(l *Loader) { l.env = env }
}

// WithParallelism bounds how many files are parsed at once.
func WithParallelism(n int) LoaderOption {
	return func(l *Loader) { l.parallelism = n }
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{parallelism: 8}
	for _, opt := range opts {
		opt(l)
	}
	if l.env == nil {
		l.env, _ = Environ()
	}
	return l
}

// Load finds every .hcl file under paths, parses them concurrently and
// aggregates their content. Files are merged in discovery order.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Grid, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading grid from paths", "paths", paths)

	files, err := fsutil.FindFiles(".hcl", paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to find grid files: %w", err)
	}
	if len(files) == 0 {
		logger.Warn("No .hcl grid files found, returning empty grid", "paths", paths)
		return NewGrid(), nil
	}

	parsed := make([]*hcl.File, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if l.parallelism > 0 {
		g.SetLimit(l.parallelism)
	}
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, diags := hclparse.NewParser().ParseHCLFile(path)
			if diags.HasErrors() {
				return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
			}
			parsed[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	grid, err := l.assemble(files, parsed)
	if err != nil {
		return nil, err
	}
	logger.Debug("Grid loaded", "files", len(files), "jobs", len(grid.Jobs))
	return grid, nil
}

// LoadSource parses a single in-memory grid file.
func (l *Loader) LoadSource(filename string, src []byte) (*Grid, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return l.assemble([]string{filename}, []*hcl.File{f})
}

// assemble decodes parsed files in order and checks grid-wide uniqueness.
func (l *Loader) assemble(paths []string, files []*hcl.File) (*Grid, error) {
	evalCtx := newEvalContext(l.env)
	grid := NewGrid()

	var schedulerBlocks hcl.Blocks
	byName := make(map[string]*JobSpec)
	for i, f := range files {
		content, diags := f.Body.Content(gridSchema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", paths[i], diags)
		}
		for _, block := range content.Blocks {
			if block.Type == "scheduler" {
				schedulerBlocks = append(schedulerBlocks, block)
				continue
			}
			spec, err := newJobSpec(block, paths[i], evalCtx)
			if err != nil {
				return nil, err
			}
			if prev, ok := byName[spec.Name]; ok {
				return nil, fmt.Errorf("duplicate job name %q in %s (first declared at %s)",
					spec.Name, spec.DefRange, prev.DefRange)
			}
			byName[spec.Name] = spec
			grid.Jobs = append(grid.Jobs, spec)
		}
	}

	block, diags := findUniqueBlock(schedulerBlocks, "scheduler")
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid grid: %w", diags)
	}
	if block != nil {
		settings, err := decodeSettings(block, evalCtx)
		if err != nil {
			return nil, err
		}
		grid.Settings = settings
	}
	return grid, nil
}

func newJobSpec(block *hcl.Block, path string, evalCtx *hcl.EvalContext) (*JobSpec, error) {
	var raw hclJob
	if diags := gohcl.DecodeBody(block.Body, evalCtx, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("error parsing job in file %s: %w", path, diags)
	}

	spec := &JobSpec{
		Kind:     block.Labels[0],
		Name:     block.Labels[1],
		Requires: raw.Requires,
		Critical: raw.Critical,
		File:     path,
		DefRange: block.DefRange,
		evalCtx:  evalCtx,
	}
	if raw.Forever != nil {
		spec.Forever = *raw.Forever
	}
	if raw.Arguments != nil {
		spec.arguments = raw.Arguments.Body
	}
	return spec, nil
}

func decodeSettings(block *hcl.Block, evalCtx *hcl.EvalContext) (Settings, error) {
	var raw hclScheduler
	if diags := gohcl.DecodeBody(block.Body, evalCtx, &raw); diags.HasErrors() {
		return Settings{}, fmt.Errorf("invalid scheduler block: %w", diags)
	}

	var s Settings
	if raw.Timeout != nil {
		d, err := time.ParseDuration(*raw.Timeout)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid scheduler timeout %q at %s: %w", *raw.Timeout, block.DefRange, err)
		}
		if d < 0 {
			return Settings{}, fmt.Errorf("scheduler timeout at %s must not be negative", block.DefRange)
		}
		s.Timeout = d
	}
	if raw.Window != nil {
		if *raw.Window < 0 {
			return Settings{}, fmt.Errorf("scheduler window at %s must not be negative", block.DefRange)
		}
		s.Window = *raw.Window
	}
	if raw.Label != nil {
		s.Label = *raw.Label
	}
	return s, nil
}

// findUniqueBlock returns the block named name, or nil. More than one such
// block is an error.
func findUniqueBlock(blocks hcl.Blocks, name string) (*hcl.Block, hcl.Diagnostics) {
	var found *hcl.Block
	var diags hcl.Diagnostics

	for _, block := range blocks {
		if block.Type != name {
			continue
		}
		if found != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate \"" + name + "\" block",
				Detail:   "Only one \"" + name + "\" block is allowed per grid.",
				Subject:  &block.DefRange,
			})
		}
		found = block
	}
	return found, diags
}
