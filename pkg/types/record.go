// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model and configuration structs
// for the negscan pipeline stages.
package types

import "time"

// Registry identifies which external registry a resolved region came from.
type Registry string

const (
	SourceEnsembl Registry = "ensembl"
	SourceNCBI    Registry = "ncbi"
)

// FeatureKind enumerates the categories of negative features.
type FeatureKind string

const (
	KindRepeat              FeatureKind = "repeat"
	KindSimpleRepeat        FeatureKind = "simple"
	KindVariation           FeatureKind = "variation"
	KindStructuralVariation FeatureKind = "structural_variation"
	KindExtremeGC           FeatureKind = "extreme_gc"
	KindHomopolymer         FeatureKind = "homopolymer"
	KindAmbiguous           FeatureKind = "ambiguous"
)

// DefaultFeatureKinds is the scan set used when the caller requests none.
var DefaultFeatureKinds = []FeatureKind{
	KindRepeat,
	KindSimpleRepeat,
	KindVariation,
	KindStructuralVariation,
	KindExtremeGC,
	KindHomopolymer,
	KindAmbiguous,
}

// OverlapKinds lists the kinds answered by a registry overlap lookup
// rather than by an in-sequence scan.
var OverlapKinds = []FeatureKind{
	KindRepeat,
	KindSimpleRepeat,
	KindVariation,
	KindStructuralVariation,
}

// GenomicCoordinates is the identity and span of a resolved gene region.
// It is produced once by the resolver and read-only afterwards.
// All positions are 1-based inclusive; the extended span includes the
// requested flank and never shrinks the gene span.
type GenomicCoordinates struct {
	// Accession is the UniProt accession the resolution started from.
	Accession string `json:"accession" yaml:"accession"`

	// GeneID is the resolved gene identifier (Ensembl gene id or NCBI gene id).
	GeneID string `json:"gene_id" yaml:"gene_id"`

	// Source is the registry that supplied the coordinates.
	Source Registry `json:"source" yaml:"source"`

	// SecondaryAccession is an optional supporting accession
	// (e.g. the NCBI chromosome accession.version).
	SecondaryAccession string `json:"secondary_accession,omitempty" yaml:"secondary_accession,omitempty"`

	// Species is the organism name as reported by the registry.
	Species string `json:"species" yaml:"species"`

	// AssemblyName labels the reference assembly (e.g. "GRCh38").
	AssemblyName string `json:"assembly_name" yaml:"assembly_name"`

	// SeqRegionName is the contig or chromosome name.
	SeqRegionName string `json:"seq_region_name" yaml:"seq_region_name"`

	// GeneStart and GeneEnd delimit the gene span.
	GeneStart int `json:"gene_start" yaml:"gene_start"`
	GeneEnd   int `json:"gene_end" yaml:"gene_end"`

	// Strand is +1 or -1.
	Strand int `json:"strand" yaml:"strand"`

	// DisplayName is the registry's human-readable gene symbol, if any.
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`

	// TaxID is the NCBI taxonomy id, if known (0 when absent).
	TaxID int `json:"taxid,omitempty" yaml:"taxid,omitempty"`

	// ExtStart and ExtEnd delimit the flank-extended span.
	ExtStart int `json:"ext_start" yaml:"ext_start"`
	ExtEnd   int `json:"ext_end" yaml:"ext_end"`
}

// ExtLength returns the length of the extended span in base pairs.
func (c GenomicCoordinates) ExtLength() int {
	return c.ExtEnd - c.ExtStart + 1
}

// NegativeFeature is one annotated region considered unsuitable for
// primer placement. Start/End are 0-based half-open offsets into the
// fetched sequence.
type NegativeFeature struct {
	Kind  FeatureKind `json:"kind" yaml:"kind"`
	Start int         `json:"start" yaml:"start"`
	End   int         `json:"end" yaml:"end"`

	// Description is free text for the annotation note.
	Description string `json:"description" yaml:"description"`

	// Provenance names the registry or internal scanner that produced
	// the feature (e.g. "ensembl_overlap", "internal_gc").
	Provenance string `json:"provenance" yaml:"provenance"`

	// Score carries an optional numeric value: allele frequency for
	// variants, GC percentage for extreme-GC windows, run length for
	// homopolymers. nil when no score applies.
	Score *float64 `json:"score,omitempty" yaml:"score,omitempty"`

	// Strand is +1/-1 when the registry reported one, nil otherwise.
	Strand *int `json:"strand,omitempty" yaml:"strand,omitempty"`

	// Attributes is an open map for extra registry fields
	// (allele list, consequence, external id).
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// ResolverResult pairs resolved coordinates with the warning trail
// accumulated along the resolution path. Warnings are audit strings,
// never control flow.
type ResolverResult struct {
	Coordinates GenomicCoordinates `json:"coordinates" yaml:"coordinates"`
	Warnings    []string           `json:"warnings" yaml:"warnings"`
}

// CacheEntry is one memoized HTTP response, keyed externally by a
// request fingerprint. Entries older than the configured TTL are
// treated as absent on read.
type CacheEntry struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	SavedAt    time.Time         `json:"saved_at"`
}

// RecordBundle is the full output of one pipeline run.
type RecordBundle struct {
	Coordinates GenomicCoordinates `json:"coordinates"`
	Sequence    string             `json:"sequence"`
	Features    []NegativeFeature  `json:"features"`
	Warnings    []string           `json:"warnings"`
	Metadata    map[string]any     `json:"metadata"`
}

// FeatureCounts tallies features per kind, for run summaries.
func (b RecordBundle) FeatureCounts() map[FeatureKind]int {
	counts := make(map[FeatureKind]int)
	for _, f := range b.Features {
		counts[f.Kind]++
	}
	return counts
}
