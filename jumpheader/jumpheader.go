// Package jumpheader implements the logarithmic frame skip list that
// precedes each compressed frame body in a NeoDisk log, letting a reader
// walk backward through the log in O(log N) jumps instead of a linear
// scan.
package jumpheader

import (
	"github.com/r3e-network/isocore/neopack"
)

// FrameHeader describes one frame's compressed payload and its
// back-pointers to earlier frames.
type FrameHeader struct {
	// FrameNumber is the 0-indexed position of this frame in the log.
	FrameNumber uint64
	// CompressedSize is the byte length of the frame's zstd body.
	CompressedSize uint64
	// DecompressedSize is the byte length of the frame's uncompressed
	// NeoPack record stream.
	DecompressedSize uint64
	// JumpOffsets are absolute file offsets of earlier frame headers,
	// one per set bit in the binary decomposition of FrameNumber-1.
	JumpOffsets []uint64
}

// Encode serializes a FrameHeader to NeoPack: a 4-element list of
// frame_number, compressed_size, decompressed_size, and a nested list of
// jump offsets.
func (f *FrameHeader) Encode() []byte {
	enc := neopack.NewEncoder()
	list := enc.List()
	list.U64(f.FrameNumber)
	list.U64(f.CompressedSize)
	list.U64(f.DecompressedSize)
	jumps := list.List()
	for _, off := range f.JumpOffsets {
		jumps.U64(off)
	}
	jumps.Finish()
	list.Finish()
	return enc.Bytes()
}

// DecodeFrameHeader parses the NeoPack encoding produced by Encode.
func DecodeFrameHeader(b []byte) (*FrameHeader, error) {
	r := neopack.NewReader(b)
	list, err := r.List()
	if err != nil {
		return nil, err
	}

	frameNumber, err := nextU64(list)
	if err != nil {
		return nil, err
	}
	compressedSize, err := nextU64(list)
	if err != nil {
		return nil, err
	}
	decompressedSize, err := nextU64(list)
	if err != nil {
		return nil, err
	}

	jumpVal, err := list.Next()
	if err != nil {
		return nil, err
	}
	if jumpVal == nil || jumpVal.Kind != neopack.KindList {
		return nil, &neopack.Error{Kind: neopack.ErrMalformed, Msg: "jumpheader: missing jump offset list"}
	}

	var jumpOffsets []uint64
	for {
		v, err := jumpVal.List.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			break
		}
		if v.Kind != neopack.KindU64 {
			return nil, &neopack.Error{Kind: neopack.ErrTypeMismatch}
		}
		jumpOffsets = append(jumpOffsets, v.U64)
	}

	return &FrameHeader{
		FrameNumber:      frameNumber,
		CompressedSize:   compressedSize,
		DecompressedSize: decompressedSize,
		JumpOffsets:      jumpOffsets,
	}, nil
}

func nextU64(list *neopack.ListIter) (uint64, error) {
	v, err := list.Next()
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, &neopack.Error{Kind: neopack.ErrMalformed, Msg: "jumpheader: list ended early"}
	}
	if v.Kind != neopack.KindU64 {
		return 0, &neopack.Error{Kind: neopack.ErrTypeMismatch}
	}
	return v.U64, nil
}

// ComputeJumpIndices returns the logarithmic skip list for frame
// frameIndex: the set bits of frameIndex-1, taken from the highest bit
// down, each adding one back pointer equal to the running sum of the
// powers of two seen so far (so 24 gives 16, 20, 22, 23). Frames 0 and
// 1 have no back pointers.
func ComputeJumpIndices(frameIndex uint64) []uint64 {
	if frameIndex == 0 {
		return nil
	}
	nMinus1 := frameIndex - 1
	var jumps []uint64
	accumulator := uint64(0)
	for bitPos := 63; bitPos >= 0; bitPos-- {
		if nMinus1&(uint64(1)<<uint(bitPos)) != 0 {
			accumulator += uint64(1) << uint(bitPos)
			jumps = append(jumps, accumulator)
		}
	}
	return jumps
}

// FindJumpPath returns a sequence of frame indices from "from" down to
// "to", greedily taking the smallest available jump that does not
// undershoot the target at each step. Returns nil if to >= from.
func FindJumpPath(from, to uint64) []uint64 {
	if to >= from {
		return nil
	}

	path := []uint64{from}
	current := from

	for current > to {
		jumps := ComputeJumpIndices(current)
		if len(jumps) == 0 {
			if to == 0 {
				return append(path, 0)
			}
			return nil
		}

		next, ok := smallestAtLeast(jumps, to)
		if !ok {
			return nil
		}
		path = append(path, next)
		current = next
	}

	return path
}

func smallestAtLeast(jumps []uint64, to uint64) (uint64, bool) {
	for _, j := range jumps {
		if j >= to {
			return j, true
		}
	}
	return 0, false
}
