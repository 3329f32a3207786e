// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scan

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqlab/negscan/internal/apiclient"
	"github.com/seqlab/negscan/pkg/types"
)

func newTestScanner() *Scanner {
	return New(apiclient.New(types.DefaultClientConfig(), nil))
}

func testCoords() types.GenomicCoordinates {
	return types.GenomicCoordinates{
		Accession:     "P04637",
		GeneID:        "ENSG00000141510",
		Source:        types.SourceEnsembl,
		Species:       "homo_sapiens",
		SeqRegionName: "17",
		GeneStart:     7668402,
		GeneEnd:       7687538,
		Strand:        -1,
		ExtStart:      7668302,
		ExtEnd:        7668501,
	}
}

func TestScanOverlapTranslation(t *testing.T) {
	var requestedFeatures []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		feature := r.URL.Query().Get("feature")
		requestedFeatures = append(requestedFeatures, feature)
		assert.Contains(t, r.URL.Path, "homo_sapiens/17:7668302..7668501:-1")

		w.Header().Set("Content-Type", "application/json")
		switch feature {
		case "repeat":
			json.NewEncoder(w).Encode([]map[string]any{
				{"start": 7668312, "end": 7668361, "id": "AluYa5"},
			})
		case "variation":
			json.NewEncoder(w).Encode([]map[string]any{
				{"start": 7668402, "end": 7668402, "id": "rs100", "MAF": 0.25, "alleles": []string{"A", "G"}},
				{"start": 7668410, "end": 7668410, "id": "rs200", "MAF": 0.001},
			})
		default:
			json.NewEncoder(w).Encode([]map[string]any{})
		}
	}))
	defer server.Close()

	orig := ensemblOverlapBase
	ensemblOverlapBase = server.URL
	defer func() { ensemblOverlapBase = orig }()

	scanner := newTestScanner()
	coords := testCoords()
	seq := strings.Repeat("GATC", 50) // 200 bp, no internal features

	cfg := types.DefaultScanConfig()
	features, warnings, err := scanner.Scan(coords, seq, cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// one query per overlap kind over the single chunk
	assert.ElementsMatch(t, []string{"repeat", "simple", "variation", "structural_variation"}, requestedFeatures)

	byKind := map[types.FeatureKind][]types.NegativeFeature{}
	for _, f := range features {
		byKind[f.Kind] = append(byKind[f.Kind], f)
	}

	repeats := byKind[types.KindRepeat]
	require.Len(t, repeats, 1)
	assert.Equal(t, 10, repeats[0].Start)
	assert.Equal(t, 60, repeats[0].End)
	assert.Equal(t, "repeat_region: AluYa5", repeats[0].Description)
	assert.Equal(t, "ensembl_overlap", repeats[0].Provenance)

	// rs200 is below the MAF threshold and dropped entirely
	variants := byKind[types.KindVariation]
	require.Len(t, variants, 1)
	assert.Equal(t, 100, variants[0].Start)
	assert.Equal(t, 101, variants[0].End)
	assert.Equal(t, "variant rs100, MAF=0.25", variants[0].Description)
	require.NotNil(t, variants[0].Score)
	assert.Equal(t, 0.25, *variants[0].Score)
	assert.Equal(t, "A,G", variants[0].Attributes["alleles"])
	assert.Equal(t, "rs100", variants[0].Attributes["id"])
}

func TestScanNCBISourceSkipsOverlap(t *testing.T) {
	scanner := newTestScanner()
	coords := testCoords()
	coords.Source = types.SourceNCBI

	features, warnings, err := scanner.Scan(coords, strings.Repeat("GATC", 50), types.DefaultScanConfig())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "skipped repeat/variant-based features")
	for _, f := range features {
		assert.NotEqual(t, "ensembl_overlap", f.Provenance)
	}
}

func TestScanNCBISourceNoWarningWithoutOverlapKinds(t *testing.T) {
	scanner := newTestScanner()
	coords := testCoords()
	coords.Source = types.SourceNCBI

	cfg := types.DefaultScanConfig()
	cfg.Kinds = []types.FeatureKind{types.KindHomopolymer, types.KindAmbiguous}

	_, warnings, err := scanner.Scan(coords, "AAAAAATTTN", cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestScanOverlapFailureIsNonFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad region", http.StatusBadRequest)
	}))
	defer server.Close()

	orig := ensemblOverlapBase
	ensemblOverlapBase = server.URL
	defer func() { ensemblOverlapBase = orig }()

	scanner := newTestScanner()
	seq := "AAAAAA" + strings.Repeat("GATC", 10)

	features, warnings, err := scanner.Scan(testCoords(), seq, types.DefaultScanConfig())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// internal scans still contribute
	var kinds []types.FeatureKind
	for _, f := range features {
		kinds = append(kinds, f.Kind)
	}
	assert.Contains(t, kinds, types.KindHomopolymer)
}

func TestScanInternalFeatures(t *testing.T) {
	scanner := newTestScanner()
	coords := testCoords()
	coords.Source = types.SourceNCBI

	cfg := types.DefaultScanConfig()
	cfg.Kinds = []types.FeatureKind{types.KindExtremeGC, types.KindHomopolymer, types.KindAmbiguous}

	seq := strings.Repeat("G", 100) + "NNN" + strings.Repeat("AT", 50)
	features, warnings, err := scanner.Scan(coords, seq, cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	counts := map[types.FeatureKind]int{}
	for _, f := range features {
		counts[f.Kind]++
		switch f.Kind {
		case types.KindExtremeGC:
			assert.Equal(t, "internal_gc", f.Provenance)
			require.NotNil(t, f.Score)
		case types.KindHomopolymer:
			assert.Equal(t, "internal_regex", f.Provenance)
		case types.KindAmbiguous:
			assert.Equal(t, "Ambiguous base(s) present", f.Description)
			assert.Equal(t, 100, f.Start)
			assert.Equal(t, 103, f.End)
		}
	}
	assert.Positive(t, counts[types.KindExtremeGC])
	assert.Positive(t, counts[types.KindHomopolymer])
	assert.Equal(t, 1, counts[types.KindAmbiguous])
}
