package nano

import (
	"fmt"

	"github.com/sbl8/stencilcore/dims"
	"github.com/sbl8/stencilcore/kernel"
)

// perDim holds the engine's working state for one domain dimension
// across the CalcNanoBlockOpt decomposition, mirroring the scalar
// locals (fcbgn, fvbgn, do_left_fvec, ...) the reference keeps in its
// per-dim loop body before saving them into the ScanIndices/mask arrays.
type perDim struct {
	fcbgn, fcend     dims.Index
	fvbgn, fvend     dims.Index
	ovbgn, ovend     dims.Index
	doLeftFvec       bool
	doRightFvec      bool
	doLeftPvec       bool
	doRightPvec      bool
	peelMask         kernel.Mask
	remMask          kernel.Mask
}

// CalcNanoBlockOpt calculates results for one nano-block using the
// optimized (vectorized) path. microBlockIdxs is in element units and
// global (rank-agnostic) coordinates; rankOffsets gives the per-dim
// offset to subtract to obtain rank-relative coordinates (zero in a
// single-rank configuration, since MPI/rank geometry is out of scope —
// see SPEC_FULL.md Non-goals).
func CalcNanoBlockOpt(
	core any,
	outerThread, innerThread int,
	settings Settings,
	microBlockIdxs dims.ScanIndices,
	fold dims.FoldShape,
	cluster dims.ClusterShape,
	rankOffsets dims.Indices,
	desc *kernel.Descriptor,
) error {
	n := fold.NumDims()

	sbIdxs := microBlockIdxs.CreateInner()
	sbIdxs.SetStridesFromInner(settings.PicoBlockSizes, 1)
	sbIdxs.TileSize = settings.NanoBlockTileSizes

	sbEidxs := sbIdxs
	sbFcidxs := sbIdxs
	sbFvidxs := sbIdxs
	sbOvidxs := sbIdxs
	sbEidxs.AlignOfs = dims.FromConst(0, n)
	sbFcidxs.AlignOfs = dims.FromConst(0, n)
	sbFvidxs.AlignOfs = dims.FromConst(0, n)
	sbOvidxs.AlignOfs = dims.FromConst(0, n)

	doClusters := true
	doOutsideClusters := false

	var doLeftFvecs, doRightFvecs, doLeftPvecs, doRightPvecs kernel.BitMask
	peelMasks := make([]kernel.Mask, n)
	remMasks := make([]kernel.Mask, n)

	mbit := kernel.Mask(1) << uint(fold.Product()-1)

	for j := 0; j < n; j++ {
		rofs := rankOffsets.Get(j)
		ebgn := sbIdxs.Begin.Get(j) - rofs
		eend := sbIdxs.End.Get(j) - rofs

		cpts := cluster.PointsPerDim(j, fold)
		pd := perDim{}
		pd.fcbgn = dims.RoundUpFlr(ebgn, cpts)
		pd.fcend = dims.RoundDownFlr(eend, cpts)

		vpts := fold.Len(j)
		pd.fvbgn = dims.RoundUpFlr(ebgn, vpts)
		pd.fvend = dims.RoundDownFlr(eend, vpts)

		pd.ovbgn = dims.RoundDownFlr(ebgn, vpts)
		pd.ovend = dims.RoundUpFlr(eend, vpts)

		pd.doLeftFvec = pd.fvbgn < pd.fcbgn
		pd.doRightFvec = pd.fvend > pd.fcend
		pd.doLeftPvec = ebgn < pd.fvbgn
		pd.doRightPvec = eend > pd.fvend

		if pd.doLeftPvec || pd.doRightPvec {
			var pmask, rmask kernel.Mask
			fold.VisitAll(func(pt dims.Indices, _ int) bool {
				pmask >>= 1
				rmask >>= 1
				pi := pd.ovbgn + pt.Get(j)
				if pi >= ebgn {
					pmask |= mbit
				}
				pi2 := pd.fvend + pt.Get(j)
				if pi2 < eend {
					rmask |= mbit
				}
				return true
			})
			pd.peelMask, pd.remMask = pmask, rmask
		}

		// Overlap: peel and remainder fall in the same vector.
		if pd.doLeftPvec && pd.doRightPvec && pd.ovbgn == pd.fvend {
			pd.peelMask &= pd.remMask
			pd.remMask = 0
			pd.doLeftPvec = true
			pd.doRightPvec = false
			pd.doLeftFvec = false
			pd.doRightFvec = false
			doClusters = false
		} else if pd.fcend <= pd.fcbgn {
			// No full clusters in this dim.
			pd.fcbgn, pd.fcend = pd.fvend, pd.fvend
			doClusters = false
			if pd.doLeftFvec || pd.doRightFvec {
				pd.doLeftFvec = true
				pd.doRightFvec = false
			}
		}

		if pd.doLeftFvec || pd.doRightFvec || pd.doLeftPvec || pd.doRightPvec {
			doOutsideClusters = true
		}

		sbEidxs.Begin = sbEidxs.Begin.Set(j, ebgn)
		sbEidxs.End = sbEidxs.End.Set(j, eend)
		sbFcidxs.Begin = sbFcidxs.Begin.Set(j, pd.fcbgn)
		sbFcidxs.End = sbFcidxs.End.Set(j, pd.fcend)
		sbFvidxs.Begin = sbFvidxs.Begin.Set(j, pd.fvbgn)
		sbFvidxs.End = sbFvidxs.End.Set(j, pd.fvend)
		sbOvidxs.Begin = sbOvidxs.Begin.Set(j, pd.ovbgn)
		sbOvidxs.End = sbOvidxs.End.Set(j, pd.ovend)

		peelMasks[j] = pd.peelMask
		remMasks[j] = pd.remMask
		if pd.doLeftFvec {
			doLeftFvecs = doLeftFvecs.SetBit(j)
		}
		if pd.doRightFvec {
			doRightFvecs = doRightFvecs.SetBit(j)
		}
		if pd.doLeftPvec {
			doLeftPvecs = doLeftPvecs.SetBit(j)
		}
		if pd.doRightPvec {
			doRightPvecs = doRightPvecs.SetBit(j)
		}
	}

	threadLimit := settings.ThreadLimit

	if doClusters {
		normFcidxs, err := normalizeScanIndices(sbFcidxs, fold)
		if err != nil {
			return err
		}
		desc.CalcClusters(core, outerThread, innerThread, threadLimit, normFcidxs)
	}

	if !doOutsideClusters {
		return nil
	}

	normFvidxs, err := normalizeScanIndices(sbFvidxs, fold)
	if err != nil {
		return err
	}
	normOvidxs, err := normalizeScanIndices(sbOvidxs, fold)
	if err != nil {
		return err
	}
	normFcidxs, err := normalizeScanIndices(sbFcidxs, fold)
	if err != nil {
		return err
	}

	for k := 1; k <= n; k++ {
		ncombos := kernel.NChooseK(n, k)
		nseqs := 1 << uint(k)

		for r := 0; r < ncombos; r++ {
			cdims := kernel.NChooseKSet(n, k, r)

			for lr := 0; lr < nseqs; lr++ {
				fvPart := normFcidxs
				pvPart := normFvidxs
				fvNeeded := true
				pvNeeded := true
				pvMask := kernel.FullMask

				nsel := 0
				for j := 0; j < n; j++ {
					if !cdims.IsBitSet(j) {
						continue
					}
					isLeft := (lr>>uint(nsel))&1 == 0
					nsel++

					if isLeft {
						fvPart.Begin = fvPart.Begin.Set(j, normFvidxs.Begin.Get(j))
						fvPart.End = fvPart.End.Set(j, normFcidxs.Begin.Get(j))
						if !doLeftFvecs.IsBitSet(j) {
							fvNeeded = false
						}
						pvPart.Begin = pvPart.Begin.Set(j, normOvidxs.Begin.Get(j))
						pvPart.End = pvPart.End.Set(j, normFvidxs.Begin.Get(j))
						pvMask &= peelMasks[j]
						if !doLeftPvecs.IsBitSet(j) {
							pvNeeded = false
						}
					} else {
						fvPart.Begin = fvPart.Begin.Set(j, normFcidxs.End.Get(j))
						fvPart.End = fvPart.End.Set(j, normFvidxs.End.Get(j))
						if !doRightFvecs.IsBitSet(j) {
							fvNeeded = false
						}
						pvPart.Begin = pvPart.Begin.Set(j, normFvidxs.End.Get(j))
						pvPart.End = pvPart.End.Set(j, normOvidxs.End.Get(j))
						pvMask &= remMasks[j]
						if !doRightPvecs.IsBitSet(j) {
							pvNeeded = false
						}
					}
				}

				if fvNeeded {
					desc.CalcVectors(core, outerThread, innerThread, threadLimit, fvPart, kernel.FullMask)
				}
				if pvNeeded {
					desc.CalcVectors(core, outerThread, innerThread, threadLimit, pvPart, pvMask)
				}
			}
		}
	}

	return nil
}

// normalizeScanIndices divides begin/end by the fold length in every
// domain dim. The reference asserts that each dim of orig is an exact
// multiple of the corresponding fold length; here that assertion
// becomes a returned error (§7: "misaligned normalize_indices input"
// is an Invariant Violation).
func normalizeScanIndices(idxs dims.ScanIndices, fold dims.FoldShape) (dims.ScanIndices, error) {
	norm := idxs
	n := fold.NumDims()
	for j := 0; j < n; j++ {
		vlen := fold.Len(j)
		for _, pair := range []struct {
			name string
			get  func() dims.Index
			set  func(dims.Index)
		}{
			{"begin", func() dims.Index { return idxs.Begin.Get(j) }, func(v dims.Index) { norm.Begin = norm.Begin.Set(j, v) }},
			{"end", func() dims.Index { return idxs.End.Get(j) }, func(v dims.Index) { norm.End = norm.End.Set(j, v) }},
		} {
			v := pair.get()
			if dims.FloorMod(v, vlen) != 0 {
				return dims.ScanIndices{}, fmt.Errorf("nano: normalize_indices: dim %d %s=%d is not a multiple of fold length %d", j, pair.name, v, vlen)
			}
			pair.set(dims.FloorDiv(v, vlen))
		}
	}
	norm.Start = norm.Begin
	norm.Stop = norm.End
	return norm, nil
}
