// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve turns a UniProt accession into genomic coordinates
// by walking a chain of registries: the EBI coordinates service and
// Ensembl on the primary path, NCBI E-utilities on the secondary path,
// with the UniProt entry informing routing and supplying fallback data.
package resolve

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/seqlab/negscan/internal/apiclient"
	"github.com/seqlab/negscan/internal/coord"
	"github.com/seqlab/negscan/pkg/types"
)

// NoMappingError is raised once every resolution path is exhausted.
// It carries the warning trail accumulated along the attempted paths.
type NoMappingError struct {
	Accession string
	Warnings  []string
}

func (e *NoMappingError) Error() string {
	return fmt.Sprintf("no genomic mapping found for %s", e.Accession)
}

// microbialMarkers are lineage terms that route resolution through
// NCBI first; Ensembl's main site does not cover these organisms.
var microbialMarkers = []string{"bacteria", "archaea", "viruses", "viral"}

// Resolver implements the multi-source coordinate resolution chain.
type Resolver struct {
	api    *apiclient.Client
	logger *zap.Logger
}

// New builds a Resolver over the shared API client.
func New(api *apiclient.Client) *Resolver {
	return &Resolver{api: api, logger: zap.NewNop()}
}

// SetLogger installs a structured logger. The default is a no-op.
func (r *Resolver) SetLogger(l *zap.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Resolve maps the accession to a flank-extended genomic region.
// The preferred path is chosen by organism classification; the other
// path is still attempted before declaring failure. All non-fatal
// anomalies are returned as warnings on the result.
func (r *Resolver) Resolve(accession string, cfg types.ResolveConfig) (*types.ResolverResult, error) {
	var warnings []string

	// The canonical UniProt entry is non-fatal: routing and the NCBI
	// path degrade without it but the Ensembl path can still succeed.
	entry, err := r.fetchUniProtEntry(accession)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("UniProt entry fetch failed for %s: %v", accession, err))
		r.logger.Debug("uniprot entry unavailable", zap.String("accession", accession), zap.Error(err))
	}

	ncbiFirst := isMicrobial(entry)
	if ncbiFirst {
		warnings = append(warnings, "organism lineage looks microbial; preferring NCBI resolution path")
	}

	var coords *types.GenomicCoordinates
	if ncbiFirst {
		coords, warnings = r.tryNCBIThenEnsembl(accession, entry, cfg, warnings)
	} else {
		coords, warnings = r.tryEnsemblThenNCBI(accession, entry, cfg, warnings)
	}
	if coords == nil {
		return nil, &NoMappingError{Accession: accession, Warnings: warnings}
	}

	if coords.GeneStart > coords.GeneEnd {
		warnings = append(warnings, fmt.Sprintf("inverted gene span %d-%d reordered", coords.GeneStart, coords.GeneEnd))
		coords.GeneStart, coords.GeneEnd = coords.GeneEnd, coords.GeneStart
	}

	if cfg.TaxIDFilter != 0 && coords.TaxID != 0 && coords.TaxID != cfg.TaxIDFilter {
		warnings = append(warnings, fmt.Sprintf("taxid mismatch: got %d, requested %d", coords.TaxID, cfg.TaxIDFilter))
	}

	extStart, extEnd := coord.ApplyFlank(coords.GeneStart, coords.GeneEnd, cfg.FlankBP, cfg.FlankMode, coords.Strand)
	coords.ExtStart = extStart
	coords.ExtEnd = extEnd
	coords.Accession = accession

	return &types.ResolverResult{Coordinates: *coords, Warnings: warnings}, nil
}

func (r *Resolver) tryEnsemblThenNCBI(accession string, entry *uniprotEntry, cfg types.ResolveConfig, warnings []string) (*types.GenomicCoordinates, []string) {
	coords, ws := r.resolveEnsembl(accession, entry)
	warnings = append(warnings, ws...)
	if coords != nil {
		return coords, warnings
	}
	warnings = append(warnings, "Ensembl path failed; falling back to NCBI gene search")

	coords, ws = r.resolveNCBI(accession, entry, cfg)
	warnings = append(warnings, ws...)
	return coords, warnings
}

func (r *Resolver) tryNCBIThenEnsembl(accession string, entry *uniprotEntry, cfg types.ResolveConfig, warnings []string) (*types.GenomicCoordinates, []string) {
	coords, ws := r.resolveNCBI(accession, entry, cfg)
	warnings = append(warnings, ws...)
	if coords != nil {
		return coords, warnings
	}
	warnings = append(warnings, "NCBI path failed; falling back to Ensembl resolution")

	coords, ws = r.resolveEnsembl(accession, entry)
	warnings = append(warnings, ws...)
	return coords, warnings
}

// isMicrobial checks the entry's lineage list and scientific name
// against the microbial marker set, case-insensitively.
func isMicrobial(entry *uniprotEntry) bool {
	if entry == nil {
		return false
	}
	haystack := make([]string, 0, len(entry.Organism.Lineage)+1)
	haystack = append(haystack, entry.Organism.Lineage...)
	haystack = append(haystack, entry.Organism.ScientificName)
	for _, term := range haystack {
		lower := strings.ToLower(term)
		for _, marker := range microbialMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}
