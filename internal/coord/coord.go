// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package coord holds the coordinate arithmetic shared by the
// resolver, fetcher, and scanner: flank expansion, 1-based to 0-based
// translation, region clamping, and chunking.
package coord

import (
	"fmt"

	"github.com/seqlab/negscan/pkg/types"
)

// ApplyFlank extends a 1-based inclusive gene span by flankBP on both
// sides, clamped at position 1. FlankStrandRelative currently computes
// the same symmetric expansion as FlankGenomic; an unknown strand
// falls back to genomic mode.
func ApplyFlank(geneStart, geneEnd, flankBP int, mode types.FlankMode, strand int) (int, int) {
	if mode == types.FlankStrandRelative && strand != 1 && strand != -1 {
		mode = types.FlankGenomic
	}
	// Both modes expand symmetrically today; strand-relative expansion
	// is accepted as its own mode so callers can request it without a
	// flag change once asymmetric flanking lands.
	start := geneStart - flankBP
	if start < 1 {
		start = 1
	}
	return start, geneEnd + flankBP
}

// ToRelative translates a 1-based inclusive provider span into a
// 0-based half-open span relative to a fetched sequence that begins at
// extStart, clipping to [0, seqLen).
func ToRelative(featureStart, featureEnd, extStart, seqLen int) (int, int) {
	relStart := featureStart - extStart
	relEnd := featureEnd - extStart + 1
	if relStart < 0 {
		relStart = 0
	}
	if relEnd > seqLen {
		relEnd = seqLen
	}
	return relStart, relEnd
}

// RegionString renders the registry region descriptor "chr:start..end:strand".
func RegionString(chrName string, start, end, strand int) string {
	return fmt.Sprintf("%s:%d..%d:%d", chrName, start, end, strand)
}

// ClampRegionLength shrinks a 1-based inclusive span symmetrically to
// at most maxLen bases. It never grows the span. The bool reports
// whether clamping happened.
func ClampRegionLength(start, end, maxLen int) (int, int, bool) {
	length := end - start + 1
	if length <= maxLen {
		return start, end, false
	}
	shrink := length - maxLen
	newStart := start + shrink/2
	newEnd := end - (shrink - shrink/2)
	if newStart < 1 {
		newStart = 1
		newEnd = newStart + maxLen - 1
	}
	return newStart, newEnd, true
}

// Chunk is one piece of a split region, 1-based inclusive.
type Chunk struct {
	Start int
	End   int
}

// BuildChunks splits [start, end] into consecutive chunks of at most
// chunkSize bases. An inverted span yields no chunks.
func BuildChunks(start, end, chunkSize int) []Chunk {
	if start > end || chunkSize <= 0 {
		return nil
	}
	var chunks []Chunk
	for current := start; current <= end; {
		chunkEnd := current + chunkSize - 1
		if chunkEnd > end {
			chunkEnd = end
		}
		chunks = append(chunks, Chunk{Start: current, End: chunkEnd})
		current = chunkEnd + 1
	}
	return chunks
}
