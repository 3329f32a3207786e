// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package genbank renders a RecordBundle as a GenBank-style flat file
// and an optional metadata JSON, the persisted form consumed by primer
// design tooling.
package genbank

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/seqlab/negscan/pkg/types"
)

const fileSuffix = ".negfeatures.gb"

// featureTableType maps internal kinds onto GenBank feature keys.
var featureTableType = map[types.FeatureKind]string{
	types.KindRepeat:              "repeat_region",
	types.KindSimpleRepeat:        "repeat_region",
	types.KindVariation:           "variation",
	types.KindStructuralVariation: "misc_feature",
	types.KindExtremeGC:           "misc_feature",
	types.KindHomopolymer:         "misc_feature",
	types.KindAmbiguous:           "misc_feature",
}

// OutputPaths returns the flat-file and metadata paths for a bundle.
func OutputPaths(outdir string, coords types.GenomicCoordinates) (string, string) {
	base := fmt.Sprintf("%s.%s.%s_%d_%d",
		coords.Accession,
		safeName(coords.AssemblyName),
		safeName(coords.SeqRegionName),
		coords.ExtStart,
		coords.ExtEnd,
	)
	return filepath.Join(outdir, base+fileSuffix), filepath.Join(outdir, base+".metadata.json")
}

func safeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Write renders the bundle under outdir and returns the flat-file path
// and the metadata path ("" when metadata writing is disabled).
func Write(bundle *types.RecordBundle, outdir string, writeMetadata bool) (string, string, error) {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating output directory: %w", err)
	}
	gbPath, jsonPath := OutputPaths(outdir, bundle.Coordinates)

	var b strings.Builder
	renderRecord(&b, bundle)
	if err := os.WriteFile(gbPath, []byte(b.String()), 0o644); err != nil {
		return "", "", fmt.Errorf("writing record: %w", err)
	}

	if !writeMetadata {
		return gbPath, "", nil
	}

	metadata := make(map[string]any, len(bundle.Metadata)+1)
	for k, v := range bundle.Metadata {
		metadata[k] = v
	}
	if _, ok := metadata["run_timestamp"]; !ok {
		metadata["run_timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	encoded, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(jsonPath, append(encoded, '\n'), 0o644); err != nil {
		return "", "", fmt.Errorf("writing metadata: %w", err)
	}
	return gbPath, jsonPath, nil
}

func renderRecord(b *strings.Builder, bundle *types.RecordBundle) {
	coords := bundle.Coordinates
	seq := strings.ToUpper(bundle.Sequence)
	date := strings.ToUpper(time.Now().Format("02-Jan-2006"))

	fmt.Fprintf(b, "LOCUS       %-16s %d bp    DNA     linear   UNC %s\n",
		coords.Accession, len(seq), date)
	fmt.Fprintf(b, "DEFINITION  negscan gDNA region for %s (%s %s:%d-%d, strand=%d)\n",
		coords.Accession, coords.AssemblyName, coords.SeqRegionName,
		coords.ExtStart, coords.ExtEnd, coords.Strand)
	fmt.Fprintf(b, "ACCESSION   %s\n", coords.Accession)
	fmt.Fprintf(b, "SOURCE      %s\n", coords.Species)
	b.WriteString("FEATURES             Location/Qualifiers\n")

	writeFeature(b, "source", 1, len(seq), 1)
	writeQualifier(b, "organism", coords.Species)
	writeQualifier(b, "db_xref", "UniProtKB:"+coords.Accession)
	if coords.GeneID != "" {
		writeQualifier(b, "db_xref", registryXref(coords))
	}
	writeQualifier(b, "note", fmt.Sprintf("original genomic: %s %s:%d-%d",
		coords.AssemblyName, coords.SeqRegionName, coords.ExtStart, coords.ExtEnd))

	geneStart := coords.GeneStart - coords.ExtStart + 1
	if geneStart < 1 {
		geneStart = 1
	}
	geneEnd := coords.GeneEnd - coords.ExtStart + 1
	if geneEnd > len(seq) {
		geneEnd = len(seq)
	}
	if geneEnd >= geneStart {
		writeFeature(b, "gene", geneStart, geneEnd, coords.Strand)
		name := coords.DisplayName
		if name == "" {
			name = coords.GeneID
		}
		writeQualifier(b, "gene", name)
		writeQualifier(b, "db_xref", registryXref(coords))
	}

	for _, f := range sortedFeatures(bundle.Features) {
		key := featureTableType[f.Kind]
		if key == "" {
			key = "misc_feature"
		}
		strand := 0
		if f.Strand != nil {
			strand = *f.Strand
		}
		// Internal features are 0-based half-open; the table wants
		// 1-based inclusive.
		writeFeature(b, key, f.Start+1, f.End, strand)
		writeQualifier(b, "label", string(f.Kind))
		writeQualifier(b, "note", f.Description)
		writeQualifier(b, "source", f.Provenance)
		if f.Score != nil {
			writeQualifier(b, "score", fmt.Sprintf("%g", *f.Score))
		}
		for _, k := range sortedAttrKeys(f.Attributes) {
			if k == "id" {
				writeQualifier(b, "db_xref", f.Attributes[k])
			} else {
				writeQualifier(b, k, f.Attributes[k])
			}
		}
	}

	writeOrigin(b, seq)
	b.WriteString("//\n")
}

func registryXref(coords types.GenomicCoordinates) string {
	if coords.Source == types.SourceNCBI {
		return "GeneID:" + coords.GeneID
	}
	return "Ensembl:" + coords.GeneID
}

// sortedFeatures orders the table by start, then longest first, then
// kind, matching reader expectations for nested annotations.
func sortedFeatures(features []types.NegativeFeature) []types.NegativeFeature {
	sorted := append([]types.NegativeFeature(nil), features...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		li, lj := sorted[i].End-sorted[i].Start, sorted[j].End-sorted[j].Start
		if li != lj {
			return li > lj
		}
		return sorted[i].Kind < sorted[j].Kind
	})
	return sorted
}

func sortedAttrKeys(attrs map[string]string) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeFeature(b *strings.Builder, key string, start, end, strand int) {
	location := fmt.Sprintf("%d..%d", start, end)
	if strand == -1 {
		location = fmt.Sprintf("complement(%d..%d)", start, end)
	}
	fmt.Fprintf(b, "     %-16s%s\n", key, location)
}

func writeQualifier(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "                     /%s=\"%s\"\n", key, value)
}

// writeOrigin renders the sequence in the classic 60-column, 10-base
// block layout.
func writeOrigin(b *strings.Builder, seq string) {
	b.WriteString("ORIGIN\n")
	lower := strings.ToLower(seq)
	for line := 0; line*60 < len(lower); line++ {
		start := line * 60
		end := start + 60
		if end > len(lower) {
			end = len(lower)
		}
		fmt.Fprintf(b, "%9d", start+1)
		for block := start; block < end; block += 10 {
			blockEnd := block + 10
			if blockEnd > end {
				blockEnd = end
			}
			b.WriteByte(' ')
			b.WriteString(lower[block:blockEnd])
		}
		b.WriteByte('\n')
	}
}
