// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates one run: accession → resolved
// coordinates → fetched sequence → normalized features. All stages
// share one API client and one cache store; execution is strictly
// sequential.
package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/seqlab/negscan/internal/apiclient"
	"github.com/seqlab/negscan/internal/fetchseq"
	"github.com/seqlab/negscan/internal/httpcache"
	"github.com/seqlab/negscan/internal/resolve"
	"github.com/seqlab/negscan/internal/scan"
	"github.com/seqlab/negscan/pkg/types"
)

// Options gathers the per-run settings consumed from the CLI.
type Options struct {
	Client  types.ClientConfig
	Resolve types.ResolveConfig
	Fetch   types.FetchConfig
	Scan    types.ScanConfig
}

// Pipeline wires the stages over one shared client.
type Pipeline struct {
	resolver *resolve.Resolver
	fetcher  *fetchseq.Fetcher
	scanner  *scan.Scanner
	opts     Options
	logger   *zap.Logger
}

// New builds the pipeline over an injected cache store. A nil store
// runs with caching disabled.
func New(opts Options, store httpcache.Store, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := apiclient.New(opts.Client, store)
	api.SetLogger(logger)

	resolver := resolve.New(api)
	resolver.SetLogger(logger)
	fetcher := fetchseq.New(api)
	fetcher.SetLogger(logger)
	scanner := scan.New(api)
	scanner.SetLogger(logger)

	return &Pipeline{
		resolver: resolver,
		fetcher:  fetcher,
		scanner:  scanner,
		opts:     opts,
		logger:   logger,
	}
}

// Run executes the full chain for one accession. Warnings from every
// stage are aggregated in stage order on the returned bundle.
func (p *Pipeline) Run(accession string) (*types.RecordBundle, error) {
	result, err := p.resolver.Resolve(accession, p.opts.Resolve)
	if err != nil {
		return nil, err
	}
	coords := result.Coordinates
	p.logger.Info("resolved",
		zap.String("accession", accession),
		zap.String("gene_id", coords.GeneID),
		zap.String("source", string(coords.Source)),
		zap.String("region", fmt.Sprintf("%s:%d-%d", coords.SeqRegionName, coords.ExtStart, coords.ExtEnd)))

	sequence, fetchWarnings, err := p.fetcher.Fetch(coords, p.opts.Fetch)
	if err != nil {
		return nil, err
	}
	p.logger.Info("fetched sequence", zap.Int("length", len(sequence)))

	features, scanWarnings, err := p.scanner.Scan(coords, sequence, p.opts.Scan)
	if err != nil {
		return nil, err
	}
	p.logger.Info("scanned features", zap.Int("count", len(features)))

	warnings := make([]string, 0, len(result.Warnings)+len(fetchWarnings)+len(scanWarnings))
	warnings = append(warnings, result.Warnings...)
	warnings = append(warnings, fetchWarnings...)
	warnings = append(warnings, scanWarnings...)

	bundle := &types.RecordBundle{
		Coordinates: coords,
		Sequence:    sequence,
		Features:    features,
		Warnings:    warnings,
	}
	bundle.Metadata = buildMetadata(accession, bundle, p.opts)
	return bundle, nil
}

// buildMetadata assembles the audit map persisted next to the record.
func buildMetadata(accession string, bundle *types.RecordBundle, opts Options) map[string]any {
	counts := map[string]int{}
	for kind, n := range bundle.FeatureCounts() {
		counts[string(kind)] = n
	}
	coords := bundle.Coordinates
	return map[string]any{
		"accession":      accession,
		"gene_id":        coords.GeneID,
		"source":         string(coords.Source),
		"assembly":       coords.AssemblyName,
		"region":         fmt.Sprintf("%s:%d-%d:%d", coords.SeqRegionName, coords.ExtStart, coords.ExtEnd, coords.Strand),
		"flank_bp":       opts.Resolve.FlankBP,
		"flank_mode":     string(opts.Resolve.FlankMode),
		"mask":           string(opts.Fetch.Mask),
		"api_cache":      opts.Client.CacheEnabled,
		"scan_config":    opts.Scan,
		"warnings":       bundle.Warnings,
		"feature_counts": counts,
	}
}
