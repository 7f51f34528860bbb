// Package compiler implements a small textual DSL that stands in for the
// offline stencil compiler spec.md places out of scope: it compiles a
// bundle specification into a runnable bundle.Stage wired with refbundle
// closures, the same way a real stencil compiler would emit generated
// code for each bundle it reads from a .stencil source file.
//
// DSL grammar, one directive per line, blank lines and '#' comments
// ignored:
//
//	fold    <v0> <v1> ...              # per-dim vector lane counts
//	cluster <v0> <v1> ...              # per-dim vectors-per-cluster
//	domain  <v0> <v1> ...              # per-dim core extent (begin is 0)
//	halo    <v0> <v1> ...              # per-dim symmetric halo width
//	bundle  <name> <kind> [depends=a,b] [scratchFor=parent]
//	iterate <var> <start> <end> {
//	  ... lines with <var> substituted by each integer in [start,end] ...
//	}
//
// kind selects a refbundle constructor ("jacobi2d" or "jacobi3d").
package compiler

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sbl8/stencilcore/bundle"
	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/kernel"
	"github.com/sbl8/stencilcore/refbundle"
)

// bundleSpec is one parsed "bundle" directive.
type bundleSpec struct {
	name         string
	kind         string
	deps         []string
	scratchFor   string
}

func (s bundleSpec) isScratch() bool { return s.scratchFor != "" }

// spec is the fully parsed DSL program, before any bundle.Stage is built.
type spec struct {
	fold, cluster, extent, halo []dims.Index
	bundles                     []bundleSpec
}

// CompiledStage is the live, runnable result of compiling a DSL program:
// a bundle.Stage and the grid/shape state its bundles were built against.
type CompiledStage struct {
	Stage   *bundle.Stage
	Grid    *refbundle.Grid
	Fold    dims.FoldShape
	Cluster dims.ClusterShape
	Domain  dims.BoundingBox
}

// Compile parses src and builds a runnable CompiledStage named stageName.
func Compile(src []byte, stageName string) (*CompiledStage, error) {
	sp, err := parseSpec(src)
	if err != nil {
		return nil, err
	}
	return buildStage(sp, stageName)
}

// CompileFile reads path and compiles it, mirroring the teacher compiler's
// loadAndParseSpec(os.ReadFile + parse) idiom.
func CompileFile(path, stageName string) (*CompiledStage, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(src, stageName)
}

// parseSpec walks the DSL source line by line, the same shape as the
// teacher's parseSpec/dslParser.parseLine dispatch loop.
func parseSpec(src []byte) (*spec, error) {
	lines := strings.Split(string(src), "\n")
	p := &spec{}
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var err error
		i, err = p.parseLine(lines, i)
		if err != nil {
			return nil, fmt.Errorf("compiler: line %d: %w", i+1, err)
		}
	}
	if len(p.halo) == 0 && len(p.extent) > 0 {
		p.halo = make([]dims.Index, len(p.extent))
		for i := range p.halo {
			p.halo[i] = 1
		}
	}
	return p, nil
}

func (p *spec) parseLine(lines []string, idx int) (int, error) {
	line := strings.TrimSpace(lines[idx])
	fields := strings.Fields(line)
	if fields[0] == "iterate" {
		return p.parseIterateBlock(lines, idx, fields)
	}
	return idx, p.processSimpleLine(line, fields)
}

func (p *spec) processSimpleLine(line string, fields []string) error {
	switch fields[0] {
	case "fold":
		vals, err := parseIndexList(fields[1:])
		if err != nil {
			return err
		}
		p.fold = vals
	case "cluster":
		vals, err := parseIndexList(fields[1:])
		if err != nil {
			return err
		}
		p.cluster = vals
	case "domain":
		vals, err := parseIndexList(fields[1:])
		if err != nil {
			return err
		}
		p.extent = vals
	case "halo":
		vals, err := parseIndexList(fields[1:])
		if err != nil {
			return err
		}
		p.halo = vals
	case "bundle":
		bs, err := parseBundleFields(fields)
		if err != nil {
			return err
		}
		p.bundles = append(p.bundles, bs)
	default:
		return fmt.Errorf("unknown directive %q", fields[0])
	}
	return nil
}

// parseIterateBlock mirrors the teacher's parseIterateBlock/
// collectBlockLines/expandIterateBlock trio: find the brace, collect the
// block, and re-run each line once per integer in [start, end] with
// varName textually substituted.
func (p *spec) parseIterateBlock(lines []string, idx int, fields []string) (int, error) {
	if len(fields) < 4 {
		return idx, fmt.Errorf("invalid iterate spec: %s", strings.Join(fields, " "))
	}
	varName := fields[1]
	start, err := strconv.Atoi(fields[2])
	if err != nil {
		return idx, fmt.Errorf("invalid iterate start %q: %w", fields[2], err)
	}
	end, err := strconv.Atoi(fields[3])
	if err != nil {
		return idx, fmt.Errorf("invalid iterate end %q: %w", fields[3], err)
	}

	blockStart := idx
	if !strings.HasSuffix(strings.Join(fields, " "), "{") {
		blockStart++
		for blockStart < len(lines) && strings.TrimSpace(lines[blockStart]) == "" {
			blockStart++
		}
		if blockStart >= len(lines) || strings.TrimSpace(lines[blockStart]) != "{" {
			return idx, fmt.Errorf("missing '{' after iterate")
		}
	}

	block, blockEnd, err := collectBlockLines(lines, blockStart)
	if err != nil {
		return idx, err
	}

	for v := start; v <= end; v++ {
		for _, line := range block {
			expanded := expandVariable(line, varName, v)
			fields := strings.Fields(expanded)
			if err := p.processSimpleLine(expanded, fields); err != nil {
				return idx, fmt.Errorf("iterate expansion: %w", err)
			}
		}
	}
	return blockEnd, nil
}

func collectBlockLines(lines []string, startIdx int) ([]string, int, error) {
	var block []string
	i := startIdx + 1
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "}" {
			return block, i, nil
		}
		if line != "" && !strings.HasPrefix(line, "#") {
			block = append(block, line)
		}
		i++
	}
	return nil, i, fmt.Errorf("unterminated iterate block")
}

func expandVariable(line, varName string, value int) string {
	fields := strings.Fields(line)
	for i, field := range fields {
		if field == varName {
			fields[i] = strconv.Itoa(value)
		}
	}
	return strings.Join(fields, " ")
}

func parseIndexList(fields []string) ([]dims.Index, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("missing values")
	}
	out := make([]dims.Index, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q: %w", f, err)
		}
		out[i] = dims.Index(v)
	}
	return out, nil
}

// parseBundleFields parses "bundle <name> <kind> [depends=a,b] [scratchFor=x]".
func parseBundleFields(fields []string) (bundleSpec, error) {
	if len(fields) < 3 {
		return bundleSpec{}, fmt.Errorf("invalid bundle spec: needs name and kind")
	}
	bs := bundleSpec{name: fields[1], kind: fields[2]}
	for _, f := range fields[3:] {
		switch {
		case strings.HasPrefix(f, "depends="):
			bs.deps = strings.Split(strings.TrimPrefix(f, "depends="), ",")
		case strings.HasPrefix(f, "scratchFor="):
			bs.scratchFor = strings.TrimPrefix(f, "scratchFor=")
		default:
			return bundleSpec{}, fmt.Errorf("bundle %q: unknown option %q", bs.name, f)
		}
	}
	return bs, nil
}

// buildStage turns a parsed spec into a live CompiledStage: it allocates
// the shared reference grid, instantiates a refbundle descriptor per
// bundle directive, wires dependency and scratch-child edges, computes
// bounding boxes, and registers every non-scratch bundle with the stage
// in declaration order.
func buildStage(sp *spec, stageName string) (*CompiledStage, error) {
	if len(sp.extent) == 0 {
		return nil, fmt.Errorf("compiler: missing domain directive")
	}
	n := len(sp.extent)
	if len(sp.fold) != n || len(sp.cluster) != n {
		return nil, fmt.Errorf("compiler: fold/cluster/domain dimensionality mismatch")
	}
	halo := sp.halo
	if len(halo) == 0 {
		halo = make([]dims.Index, n)
		for i := range halo {
			halo[i] = 1
		}
	}
	if len(halo) != n {
		return nil, fmt.Errorf("compiler: halo dimensionality mismatch")
	}

	fold := dims.NewFoldShape(sp.fold, 0)
	cluster := dims.NewClusterShape(sp.cluster)
	extent := dims.NewIndices(sp.extent...)
	grid := refbundle.NewGrid(extent, dims.NewIndices(halo...)).SetName(stageName)
	domain := grid.Domain()

	stage := bundle.NewStage(stageName)
	byName := make(map[string]*bundle.Bundle, len(sp.bundles))

	for _, bs := range sp.bundles {
		desc, err := buildDescriptor(bs, grid, fold)
		if err != nil {
			return nil, err
		}
		b, err := bundle.NewBundle(desc)
		if err != nil {
			return nil, fmt.Errorf("compiler: bundle %q: %w", bs.name, err)
		}
		b.FindBoundingBoxes(grid, domain)
		b.AddInput(grid)
		b.AddOutput(grid)
		if bs.isScratch() {
			// A scratch bundle's write-halo defaults to the shared
			// grid's own halo width, so its computed span covers
			// whatever neighbor reads the grid's halo was sized for.
			haloIdxs := dims.NewIndices(halo...)
			b.FindWriteHalos(haloIdxs, haloIdxs)
		}
		if _, dup := byName[bs.name]; dup {
			return nil, fmt.Errorf("compiler: duplicate bundle name %q", bs.name)
		}
		byName[bs.name] = b
	}

	for _, bs := range sp.bundles {
		b := byName[bs.name]
		for _, depName := range bs.deps {
			depName = strings.TrimSpace(depName)
			if depName == "" {
				continue
			}
			dep, ok := byName[depName]
			if !ok {
				return nil, fmt.Errorf("compiler: bundle %q depends on unknown bundle %q", bs.name, depName)
			}
			b.AddDep(dep)
		}
		if bs.isScratch() {
			parent, ok := byName[bs.scratchFor]
			if !ok {
				return nil, fmt.Errorf("compiler: bundle %q is scratchFor unknown bundle %q", bs.name, bs.scratchFor)
			}
			parent.AddScratchChild(b)
		}
	}

	for _, bs := range sp.bundles {
		if bs.isScratch() {
			continue
		}
		if err := stage.AddBundle(byName[bs.name], grid); err != nil {
			return nil, fmt.Errorf("compiler: %w", err)
		}
	}
	stage.RecomputeBB()

	return &CompiledStage{Stage: stage, Grid: grid, Fold: fold, Cluster: cluster, Domain: domain}, nil
}

func buildDescriptor(bs bundleSpec, grid *refbundle.Grid, fold dims.FoldShape) (*kernel.Descriptor, error) {
	var desc *kernel.Descriptor
	switch bs.kind {
	case "jacobi2d":
		desc = refbundle.Jacobi2D(grid, fold)
	case "jacobi3d":
		desc = refbundle.Jacobi3D(grid, fold)
	default:
		return nil, fmt.Errorf("bundle %q: unknown kind %q", bs.name, bs.kind)
	}
	desc.Name = bs.name
	desc.IsScratch = bs.isScratch()
	return desc, nil
}
