// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqlab/negscan/internal/httpcache"
	"github.com/seqlab/negscan/internal/resolve"
	"github.com/seqlab/negscan/pkg/types"
)

func testOptions() Options {
	client := types.DefaultClientConfig()
	client.Offline = true
	return Options{
		Client: client,
		Resolve: types.ResolveConfig{
			FlankBP:   1000,
			FlankMode: types.FlankGenomic,
		},
		Fetch: types.FetchConfig{Mask: types.MaskNone},
		Scan:  types.DefaultScanConfig(),
	}
}

// Offline with an empty cache exhausts every resolution path without
// touching the network, which is the deterministic failure case.
func TestRunOfflineEmptyCacheFailsResolution(t *testing.T) {
	p := New(testOptions(), httpcache.NewMemoryStore(), nil)

	_, err := p.Run("P04637")
	require.Error(t, err)

	var noMap *resolve.NoMappingError
	require.True(t, errors.As(err, &noMap))
	assert.Equal(t, "P04637", noMap.Accession)
	assert.NotEmpty(t, noMap.Warnings)
}

func TestNewAcceptsNilStoreAndLogger(t *testing.T) {
	p := New(testOptions(), nil, nil)
	require.NotNil(t, p)

	_, err := p.Run("P04637")
	require.Error(t, err)
}

func TestBuildMetadata(t *testing.T) {
	opts := testOptions()
	bundle := &types.RecordBundle{
		Coordinates: types.GenomicCoordinates{
			GeneID:        "ENSG00000141510",
			Source:        types.SourceEnsembl,
			AssemblyName:  "GRCh38",
			SeqRegionName: "17",
			Strand:        -1,
			ExtStart:      7658402,
			ExtEnd:        7697538,
		},
		Features: []types.NegativeFeature{
			{Kind: types.KindExtremeGC},
			{Kind: types.KindExtremeGC},
			{Kind: types.KindHomopolymer},
		},
		Warnings: []string{"w1"},
	}

	metadata := buildMetadata("P04637", bundle, opts)
	assert.Equal(t, "P04637", metadata["accession"])
	assert.Equal(t, "ENSG00000141510", metadata["gene_id"])
	assert.Equal(t, "ensembl", metadata["source"])
	assert.Equal(t, "17:7658402-7697538:-1", metadata["region"])
	assert.Equal(t, 1000, metadata["flank_bp"])
	assert.Equal(t, true, metadata["api_cache"])
	assert.Equal(t, []string{"w1"}, metadata["warnings"])

	counts, ok := metadata["feature_counts"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 2, counts["extreme_gc"])
	assert.Equal(t, 1, counts["homopolymer"])
}
