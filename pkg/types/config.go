// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ClientConfig holds tuning for the shared API client.
type ClientConfig struct {
	// Timeout is the per-request socket/read timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// Retries is the number of additional attempts after the first
	// on network failure, HTTP 429, or HTTP 5xx (default 5).
	Retries int `json:"retries" yaml:"retries"`

	// BackoffFactor scales the exponential retry delay in seconds
	// (delay = BackoffFactor * 2^(attempt-1), default 1.0).
	BackoffFactor float64 `json:"backoff_factor" yaml:"backoff_factor"`

	// CacheEnabled turns the response cache on or off process-wide.
	CacheEnabled bool `json:"cache_enabled" yaml:"cache_enabled"`

	// CachePath is the directory holding the cache database.
	CachePath string `json:"cache_path" yaml:"cache_path"`

	// CacheTTLHours is the cache entry lifetime; entries older than
	// this are treated as absent (default 24).
	CacheTTLHours int `json:"cache_ttl_hours" yaml:"cache_ttl_hours"`

	// Offline forbids all network I/O; a cache miss fails the call.
	Offline bool `json:"offline" yaml:"offline"`
}

// TTL returns the cache lifetime as a duration.
func (c ClientConfig) TTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// FlankMode selects how the flank extends the gene span.
type FlankMode string

const (
	// FlankGenomic extends symmetrically in genomic coordinates.
	FlankGenomic FlankMode = "genomic"
	// FlankStrandRelative is accepted as a distinct mode but currently
	// computes the same symmetric expansion as FlankGenomic.
	FlankStrandRelative FlankMode = "strand_relative"
)

// MaskMode selects repeat masking for fetched sequence.
type MaskMode string

const (
	MaskNone MaskMode = "none"
	MaskSoft MaskMode = "soft"
	MaskHard MaskMode = "hard"
)

// ResolveConfig holds settings for coordinate resolution.
type ResolveConfig struct {
	// FlankBP is the flank length added on both sides of the gene span.
	FlankBP int `json:"flank_bp" yaml:"flank_bp"`

	// FlankMode selects the flank expansion mode.
	FlankMode FlankMode `json:"flank_mode" yaml:"flank_mode"`

	// AssemblyPreference is advisory ("GRCh38", "GRCh37", or "auto").
	AssemblyPreference string `json:"assembly_preference" yaml:"assembly_preference"`

	// TaxIDFilter, when non-zero, is checked against the resolved
	// taxonomy id; a mismatch produces a warning, never a failure.
	TaxIDFilter int `json:"taxid_filter,omitempty" yaml:"taxid_filter,omitempty"`

	// NCBIAPIKey raises E-utilities rate limits when set.
	NCBIAPIKey string `json:"ncbi_api_key,omitempty" yaml:"ncbi_api_key,omitempty"`
}

// FetchConfig holds settings for sequence fetching.
type FetchConfig struct {
	// Mask selects Ensembl repeat masking for the fetched bases.
	Mask MaskMode `json:"mask" yaml:"mask"`
}

// ScanConfig holds feature scan thresholds.
type ScanConfig struct {
	// Kinds lists the requested feature kinds (default: all).
	Kinds []FeatureKind `json:"kinds" yaml:"kinds"`

	// MAFThreshold drops variation features whose minor allele
	// frequency is below this value (default 0.01).
	MAFThreshold float64 `json:"maf_threshold" yaml:"maf_threshold"`

	// GCWindow, GCStep, GCMin, GCMax parameterize the extreme-GC
	// sliding-window scan (defaults 50, 10, 30.0, 70.0).
	GCWindow int     `json:"gc_window" yaml:"gc_window"`
	GCStep   int     `json:"gc_step" yaml:"gc_step"`
	GCMin    float64 `json:"gc_min" yaml:"gc_min"`
	GCMax    float64 `json:"gc_max" yaml:"gc_max"`

	// HomopolymerAT and HomopolymerGC are the minimum run lengths for
	// A/T and G/C homopolymer calls (defaults 5 and 4).
	HomopolymerAT int `json:"homopolymer_at" yaml:"homopolymer_at"`
	HomopolymerGC int `json:"homopolymer_gc" yaml:"homopolymer_gc"`
}

// Defaults shared by the CLI and the pipeline.
const (
	DefaultTimeout       = 20 * time.Second
	DefaultRetries       = 5
	DefaultCacheTTLHours = 24
	DefaultFlankBP       = 10_000
	DefaultUserAgent     = "negscan/1.0"
)

// DefaultScanConfig returns the standard scan thresholds.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Kinds:         append([]FeatureKind(nil), DefaultFeatureKinds...),
		MAFThreshold:  0.01,
		GCWindow:      50,
		GCStep:        10,
		GCMin:         30.0,
		GCMax:         70.0,
		HomopolymerAT: 5,
		HomopolymerGC: 4,
	}
}

// DefaultClientConfig returns the standard client tuning.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:       DefaultTimeout,
		UserAgent:     DefaultUserAgent,
		Retries:       DefaultRetries,
		BackoffFactor: 1.0,
		CacheEnabled:  true,
		CachePath:     "data/cache",
		CacheTTLHours: DefaultCacheTTLHours,
	}
}
