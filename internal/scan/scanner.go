// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scan detects negative features by combining registry overlap
// lookups with in-sequence signal scans, then normalizes the combined
// set into one deduplicated, merged feature list.
package scan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/seqlab/negscan/internal/apiclient"
	"github.com/seqlab/negscan/internal/coord"
	"github.com/seqlab/negscan/pkg/types"
)

// ensemblOverlapBase is the Ensembl overlap endpoint
// ({base}/{species}/{region}?feature=...). Declared as a var so tests
// can substitute an httptest server.
var ensemblOverlapBase = "https://rest.ensembl.org/overlap/region"

const (
	// overlapMaxBP is the largest region the overlap endpoint accepts
	// in one request; larger regions are split into chunks of
	// overlapChunkBP.
	overlapMaxBP   = 5_000_000
	overlapChunkBP = 4_500_000

	sourceOverlap = "ensembl_overlap"
	sourceGC      = "internal_gc"
	sourceRegex   = "internal_regex"
)

// Scanner queries overlap annotations and runs in-sequence scans.
type Scanner struct {
	api    *apiclient.Client
	logger *zap.Logger
}

// New builds a Scanner over the shared API client.
func New(api *apiclient.Client) *Scanner {
	return &Scanner{api: api, logger: zap.NewNop()}
}

// SetLogger installs a structured logger. The default is a no-op.
func (s *Scanner) SetLogger(l *zap.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Scan collects features from both sources and normalizes them.
// Overlap lookups require an Ensembl-origin coordinate; other origins
// skip them with a warning. The returned list is deterministic for a
// given input and cache state.
func (s *Scanner) Scan(coords types.GenomicCoordinates, sequence string, cfg types.ScanConfig) ([]types.NegativeFeature, []string, error) {
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = types.DefaultFeatureKinds
	}
	requested := make(map[types.FeatureKind]bool, len(kinds))
	for _, k := range kinds {
		requested[k] = true
	}

	var warnings []string
	var collected []types.NegativeFeature

	if coords.Source == types.SourceEnsembl {
		collected = append(collected, s.scanOverlap(coords, requested, len(sequence), cfg.MAFThreshold)...)
	} else if hasOverlapKind(requested) {
		warnings = append(warnings, "NCBI sequence source does not support Ensembl overlap lookup; skipped repeat/variant-based features")
	}

	collected = append(collected, s.scanSequence(sequence, requested, cfg)...)

	deduped := Dedupe(collected)
	mergeGaps := map[types.FeatureKind]int{
		types.KindExtremeGC: cfg.GCStep,
	}
	normalized := MergeByKind(deduped, mergeGaps)
	return normalized, warnings, nil
}

func hasOverlapKind(requested map[types.FeatureKind]bool) bool {
	for _, k := range types.OverlapKinds {
		if requested[k] {
			return true
		}
	}
	return false
}

// scanOverlap queries the overlap endpoint per chunk and per requested
// kind, in sorted kind order so output is deterministic. Individual
// chunk failures are skipped; the registry simply contributes nothing
// for that chunk.
func (s *Scanner) scanOverlap(coords types.GenomicCoordinates, requested map[types.FeatureKind]bool, seqLen int, mafThreshold float64) []types.NegativeFeature {
	var overlapKinds []types.FeatureKind
	for _, k := range types.OverlapKinds {
		if requested[k] {
			overlapKinds = append(overlapKinds, k)
		}
	}
	if len(overlapKinds) == 0 {
		return nil
	}
	sort.Slice(overlapKinds, func(i, j int) bool { return overlapKinds[i] < overlapKinds[j] })

	var chunks []coord.Chunk
	regionLen := coords.ExtLength()
	if regionLen <= overlapMaxBP {
		chunks = []coord.Chunk{{Start: coords.ExtStart, End: coords.ExtEnd}}
	} else {
		chunks = coord.BuildChunks(coords.ExtStart, coords.ExtEnd, overlapChunkBP)
	}

	var features []types.NegativeFeature
	for _, chunk := range chunks {
		region := coord.RegionString(coords.SeqRegionName, chunk.Start, chunk.End, coords.Strand)
		for _, kind := range overlapKinds {
			url := fmt.Sprintf("%s/%s/%s", ensemblOverlapBase, coords.Species, region)
			resp, err := s.api.Get(url,
				map[string]string{"Accept": "application/json"},
				map[string]string{"feature": string(kind)})
			if err != nil {
				s.logger.Debug("overlap query failed",
					zap.String("region", region),
					zap.String("kind", string(kind)),
					zap.Error(err))
				continue
			}
			var items []map[string]any
			if err := resp.JSON(&items); err != nil {
				continue
			}
			for _, item := range items {
				if f, ok := s.toNegativeFeature(item, kind, coords, seqLen, mafThreshold); ok {
					features = append(features, f)
				}
			}
		}
	}
	return features
}

// toNegativeFeature converts one overlap item into a NegativeFeature
// relative to the fetched sequence. Variants below the MAF threshold
// are discarded entirely.
func (s *Scanner) toNegativeFeature(item map[string]any, kind types.FeatureKind, coords types.GenomicCoordinates, seqLen int, mafThreshold float64) (types.NegativeFeature, bool) {
	start1 := intField(item, "start", "seq_region_start")
	end1 := intField(item, "end", "seq_region_end")
	if start1 <= 0 || end1 <= 0 {
		return types.NegativeFeature{}, false
	}

	var maf *float64
	if kind == types.KindVariation || kind == types.KindStructuralVariation {
		maf = floatField(item, "minor_allele_frequency", "MAF", "maf")
		if maf != nil && *maf < mafThreshold {
			return types.NegativeFeature{}, false
		}
	}

	relStart, relEnd := coord.ToRelative(start1, end1, coords.ExtStart, seqLen)
	if relStart >= relEnd {
		return types.NegativeFeature{}, false
	}

	id := stringField(item, "id", "variant_accession", "variation_name")
	if id == "" {
		id = "unknown"
	}

	var desc string
	switch kind {
	case types.KindRepeat:
		desc = "repeat_region: " + id
	case types.KindSimpleRepeat:
		desc = "simple_repeat"
	case types.KindVariation:
		desc = "variant " + id
	case types.KindStructuralVariation:
		desc = "structural variation " + id
	default:
		desc = string(kind)
	}
	if maf != nil {
		desc += fmt.Sprintf(", MAF=%g", *maf)
	}

	attrs := map[string]string{}
	if kind == types.KindVariation {
		if alleles := stringField(item, "alleles", "variant_alleles", "alleleString"); alleles != "" {
			attrs["alleles"] = alleles
		}
		if consequence := stringField(item, "most_severe_consequence", "consequence_types"); consequence != "" {
			attrs["consequence"] = consequence
		}
		if id != "unknown" {
			attrs["id"] = id
		}
	}
	if len(attrs) == 0 {
		attrs = nil
	}

	var strand *int
	if v := intField(item, "strand"); v != 0 {
		strand = &v
	}

	return types.NegativeFeature{
		Kind:        kind,
		Start:       relStart,
		End:         relEnd,
		Description: desc,
		Provenance:  sourceOverlap,
		Score:       maf,
		Strand:      strand,
		Attributes:  attrs,
	}, true
}

// scanSequence computes the network-free feature sources.
func (s *Scanner) scanSequence(sequence string, requested map[types.FeatureKind]bool, cfg types.ScanConfig) []types.NegativeFeature {
	seqLen := len(sequence)
	var results []types.NegativeFeature

	if requested[types.KindExtremeGC] {
		windows := scanExtremeGCWindows(sequence, cfg.GCWindow, cfg.GCStep, cfg.GCMin, cfg.GCMax)
		for _, w := range mergeGCWindows(windows, cfg.GCStep) {
			if w.start >= w.end || w.start >= seqLen {
				continue
			}
			end := w.end
			if end > seqLen {
				end = seqLen
			}
			gc := w.gc
			results = append(results, types.NegativeFeature{
				Kind:        types.KindExtremeGC,
				Start:       w.start,
				End:         end,
				Description: fmt.Sprintf("Extreme GC window(s): GC<%g%% or GC>%g%%", cfg.GCMin, cfg.GCMax),
				Provenance:  sourceGC,
				Score:       &gc,
			})
		}
	}

	if requested[types.KindHomopolymer] {
		for _, run := range scanHomopolymers(sequence, cfg.HomopolymerAT, cfg.HomopolymerGC) {
			if run.start >= run.end || run.end > seqLen {
				continue
			}
			length := float64(run.end - run.start)
			results = append(results, types.NegativeFeature{
				Kind:        types.KindHomopolymer,
				Start:       run.start,
				End:         run.end,
				Description: fmt.Sprintf("Homopolymer run: %cx%d", run.base, run.end-run.start),
				Provenance:  sourceRegex,
				Score:       &length,
			})
		}
	}

	if requested[types.KindAmbiguous] {
		for _, block := range scanAmbiguous(sequence) {
			if block.start >= block.end || block.end > seqLen {
				continue
			}
			results = append(results, types.NegativeFeature{
				Kind:        types.KindAmbiguous,
				Start:       block.start,
				End:         block.end,
				Description: "Ambiguous base(s) present",
				Provenance:  sourceRegex,
			})
		}
	}
	return results
}

func intField(item map[string]any, keys ...string) int {
	for _, key := range keys {
		if v, ok := item[key]; ok && v != nil {
			switch n := v.(type) {
			case float64:
				return int(n)
			case string:
				if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
					return parsed
				}
			}
		}
	}
	return 0
}

func floatField(item map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if v, ok := item[key]; ok && v != nil {
			switch n := v.(type) {
			case float64:
				f := n
				return &f
			case string:
				if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
					return &parsed
				}
			}
		}
	}
	return nil
}

func stringField(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := item[key]; ok && v != nil {
			switch s := v.(type) {
			case string:
				return s
			case []any:
				var parts []string
				for _, p := range s {
					if str, ok := p.(string); ok {
						parts = append(parts, str)
					}
				}
				if len(parts) > 0 {
					return strings.Join(parts, ",")
				}
			case float64:
				return strconv.FormatFloat(s, 'g', -1, 64)
			}
		}
	}
	return ""
}
