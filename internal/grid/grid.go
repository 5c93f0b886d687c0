// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Grid structure, the root container for every job
// declared across the loaded .hcl files, and the JobSpec describing a single
// job block.
package grid

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
)

var validate = validator.New()

// Grid is the aggregated content of one or more grid files.
type Grid struct {
	Jobs     []*JobSpec
	Settings Settings
}

// NewGrid creates an empty Grid.
func NewGrid() *Grid {
	return &Grid{Jobs: []*JobSpec{}}
}

// Job returns the job named name, or nil.
func (g *Grid) Job(name string) *JobSpec {
	for _, j := range g.Jobs {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// Settings holds the values of the optional scheduler block. Zero values mean
// "not set in the grid".
type Settings struct {
	Timeout time.Duration
	Window  int
	Label   string
}

// JobSpec is one job block.
type JobSpec struct {
	Kind     string
	Name     string
	Requires []string
	// Critical is nil when the block does not set it.
	Critical *bool
	Forever  bool
	// File is the path of the file the block was read from.
	File     string
	DefRange hcl.Range

	arguments hcl.Body
	evalCtx   *hcl.EvalContext
}

// Decode evaluates the arguments block into target, a pointer to a struct
// with hcl tags, then checks its validate tags. A job without an arguments
// block decodes an empty body.
func (s *JobSpec) Decode(target any) error {
	body := s.arguments
	if body == nil {
		body = hcl.EmptyBody()
	}
	if diags := gohcl.DecodeBody(body, s.evalCtx, target); diags.HasErrors() {
		return fmt.Errorf("job %q: invalid arguments: %w", s.Name, diags)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("job %q: invalid arguments: %w", s.Name, err)
	}
	return nil
}

func (s *JobSpec) String() string {
	return fmt.Sprintf("%s.%s", s.Kind, s.Name)
}
