package compiler

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/sbl8/stencilcore/dims"
)

// Compiled-artifact binary format: the compiler's analogue of the
// teacher's .subl file. Since a bundle's CalcScalar/CalcVectors/
// CalcClusters closures cannot themselves be serialized, this format
// captures the parsed spec (fold/cluster/domain/halo and the bundle
// table) rather than a live graph; LoadCompiledStage rebuilds the
// runnable CompiledStage from it exactly as Compile does from DSL text.
//
// Layout, little-endian throughout:
//
//	[4]byte magic "SBLC"
//	uint32 numDims
//	int64  fold[numDims]
//	int64  cluster[numDims]
//	int64  extent[numDims]
//	int64  halo[numDims]
//	uint32 bundleCount
//	bundleCount * {
//	  uint32 nameLen;    name bytes
//	  uint32 kindLen;    kind bytes
//	  uint32 depsCount;  depsCount * (uint32 len; bytes)
//	  uint32 scratchForLen; scratchFor bytes
//	}
const magic = "SBLC"

// WriteCompiled parses src as a DSL program (validating it compiles) and
// writes its binary artifact to out.
func WriteCompiled(src []byte, out string) error {
	sp, err := parseSpec(src)
	if err != nil {
		return err
	}
	if _, err := buildStage(sp, "validate"); err != nil {
		return fmt.Errorf("compiler: refusing to emit invalid stage: %w", err)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeSpec(f, sp)
}

func writeSpec(w *os.File, sp *spec) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	n := len(sp.extent)
	if err := binary.Write(w, binary.LittleEndian, uint32(n)); err != nil {
		return err
	}
	for _, group := range [][]dims.Index{sp.fold, sp.cluster, sp.extent, sp.halo} {
		vals := group
		if len(vals) == 0 {
			vals = make([]dims.Index, n)
		}
		for _, v := range vals {
			if err := binary.Write(w, binary.LittleEndian, int64(v)); err != nil {
				return err
			}
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(sp.bundles))); err != nil {
		return err
	}
	for _, bs := range sp.bundles {
		if err := writeString(w, bs.name); err != nil {
			return err
		}
		if err := writeString(w, bs.kind); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(bs.deps))); err != nil {
			return err
		}
		for _, d := range bs.deps {
			if err := writeString(w, d); err != nil {
				return err
			}
		}
		if err := writeString(w, bs.scratchFor); err != nil {
			return err
		}
	}
	return nil
}

func writeString(w *os.File, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// LoadCompiledStage reads a binary artifact produced by WriteCompiled and
// rebuilds a runnable CompiledStage named stageName from it.
func LoadCompiledStage(path, stageName string) (*CompiledStage, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sp, err := readSpec(buf)
	if err != nil {
		return nil, err
	}
	return buildStage(sp, stageName)
}

func readSpec(buf []byte) (*spec, error) {
	r := bytes.NewReader(buf)
	hdr := make([]byte, len(magic))
	if _, err := io.ReadFull(r, hdr); err != nil || string(hdr) != magic {
		return nil, fmt.Errorf("compiler: not a compiled stage artifact")
	}

	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("compiler: truncated header: %w", err)
	}

	sp := &spec{}
	groups := []*[]dims.Index{&sp.fold, &sp.cluster, &sp.extent, &sp.halo}
	for _, g := range groups {
		vals := make([]dims.Index, n)
		for i := range vals {
			var v int64
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return nil, fmt.Errorf("compiler: truncated shape data: %w", err)
			}
			vals[i] = dims.Index(v)
		}
		*g = vals
	}

	var bundleCount uint32
	if err := binary.Read(r, binary.LittleEndian, &bundleCount); err != nil {
		return nil, fmt.Errorf("compiler: truncated bundle count: %w", err)
	}
	sp.bundles = make([]bundleSpec, bundleCount)
	for i := range sp.bundles {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		kind, err := readString(r)
		if err != nil {
			return nil, err
		}
		var depsCount uint32
		if err := binary.Read(r, binary.LittleEndian, &depsCount); err != nil {
			return nil, fmt.Errorf("compiler: truncated deps count: %w", err)
		}
		deps := make([]string, depsCount)
		for j := range deps {
			deps[j], err = readString(r)
			if err != nil {
				return nil, err
			}
		}
		scratchFor, err := readString(r)
		if err != nil {
			return nil, err
		}
		sp.bundles[i] = bundleSpec{name: name, kind: kind, deps: deps, scratchFor: scratchFor}
	}
	return sp, nil
}

func readString(r *bytes.Reader) (string, error) {
	var l uint32
	if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
		return "", fmt.Errorf("compiler: truncated string length: %w", err)
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("compiler: truncated string data: %w", err)
	}
	return string(buf), nil
}
