// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqlab/negscan/pkg/types"
)

func fptr(v float64) *float64 { return &v }

func TestDedupe(t *testing.T) {
	a := types.NegativeFeature{Kind: types.KindRepeat, Start: 10, End: 20, Description: "repeat_region: x", Provenance: "ensembl_overlap"}
	b := a
	c := a
	c.End = 25

	out := Dedupe([]types.NegativeFeature{a, b, c})
	require.Len(t, out, 2)
	assert.Equal(t, a, out[0])
	assert.Equal(t, c, out[1])
}

func TestDedupeDistinguishesStrand(t *testing.T) {
	plus, minus := 1, -1
	a := types.NegativeFeature{Kind: types.KindVariation, Start: 5, End: 6, Strand: &plus}
	b := types.NegativeFeature{Kind: types.KindVariation, Start: 5, End: 6, Strand: &minus}
	c := types.NegativeFeature{Kind: types.KindVariation, Start: 5, End: 6}

	out := Dedupe([]types.NegativeFeature{a, b, c})
	assert.Len(t, out, 3)
}

func TestMergeByKind(t *testing.T) {
	t.Run("merges overlapping same-kind intervals", func(t *testing.T) {
		features := []types.NegativeFeature{
			{Kind: types.KindRepeat, Start: 10, End: 30, Description: "repeat_region: a", Score: fptr(1.0)},
			{Kind: types.KindRepeat, Start: 20, End: 50, Description: "repeat_region: b", Score: fptr(3.0)},
			{Kind: types.KindRepeat, Start: 100, End: 120, Description: "repeat_region: c"},
		}
		out := MergeByKind(features, nil)
		require.Len(t, out, 2)
		assert.Equal(t, 10, out[0].Start)
		assert.Equal(t, 50, out[0].End)
		assert.Equal(t, "repeat_region: a; repeat_region: b", out[0].Description)
		require.NotNil(t, out[0].Score)
		assert.Equal(t, 3.0, *out[0].Score)
		assert.Equal(t, 100, out[1].Start)
	})

	t.Run("different kinds never merge", func(t *testing.T) {
		features := []types.NegativeFeature{
			{Kind: types.KindRepeat, Start: 10, End: 30},
			{Kind: types.KindVariation, Start: 20, End: 25},
		}
		out := MergeByKind(features, nil)
		assert.Len(t, out, 2)
	})

	t.Run("gap bridging applies per kind", func(t *testing.T) {
		features := []types.NegativeFeature{
			{Kind: types.KindExtremeGC, Start: 0, End: 50},
			{Kind: types.KindExtremeGC, Start: 58, End: 100},
			{Kind: types.KindHomopolymer, Start: 0, End: 50},
			{Kind: types.KindHomopolymer, Start: 58, End: 100},
		}
		gaps := map[types.FeatureKind]int{types.KindExtremeGC: 10}
		out := MergeByKind(features, gaps)
		require.Len(t, out, 3)

		var gcCount, homoCount int
		for _, f := range out {
			switch f.Kind {
			case types.KindExtremeGC:
				gcCount++
				assert.Equal(t, 0, f.Start)
				assert.Equal(t, 100, f.End)
			case types.KindHomopolymer:
				homoCount++
			}
		}
		assert.Equal(t, 1, gcCount)
		assert.Equal(t, 2, homoCount)
	})

	t.Run("repeated descriptions are not duplicated", func(t *testing.T) {
		features := []types.NegativeFeature{
			{Kind: types.KindSimpleRepeat, Start: 0, End: 10, Description: "simple_repeat"},
			{Kind: types.KindSimpleRepeat, Start: 5, End: 15, Description: "simple_repeat"},
			{Kind: types.KindSimpleRepeat, Start: 12, End: 20, Description: "simple_repeat"},
		}
		out := MergeByKind(features, nil)
		require.Len(t, out, 1)
		assert.Equal(t, "simple_repeat", out[0].Description)
	})

	t.Run("first-seen attributes win", func(t *testing.T) {
		features := []types.NegativeFeature{
			{Kind: types.KindVariation, Start: 0, End: 10, Attributes: map[string]string{"id": "rs1"}},
			{Kind: types.KindVariation, Start: 5, End: 15, Attributes: map[string]string{"id": "rs2", "alleles": "A/G"}},
		}
		out := MergeByKind(features, nil)
		require.Len(t, out, 1)
		assert.Equal(t, "rs1", out[0].Attributes["id"])
		assert.Equal(t, "A/G", out[0].Attributes["alleles"])
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		features := []types.NegativeFeature{
			{Kind: types.KindRepeat, Start: 10, End: 30, Description: "repeat_region: a", Score: fptr(1.0)},
			{Kind: types.KindRepeat, Start: 20, End: 50, Description: "repeat_region: b"},
			{Kind: types.KindExtremeGC, Start: 0, End: 60, Score: fptr(80.0)},
			{Kind: types.KindAmbiguous, Start: 5, End: 9},
		}
		gaps := map[types.FeatureKind]int{types.KindExtremeGC: 10}
		once := MergeByKind(features, gaps)
		twice := MergeByKind(once, gaps)
		assert.Equal(t, once, twice)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		features := []types.NegativeFeature{
			{Kind: types.KindRepeat, Start: 10, End: 30, Description: "a", Attributes: map[string]string{"k": "v"}},
			{Kind: types.KindRepeat, Start: 20, End: 50, Description: "b", Attributes: map[string]string{"k2": "v2"}},
		}
		MergeByKind(features, nil)
		assert.Equal(t, 30, features[0].End)
		assert.Equal(t, "a", features[0].Description)
		assert.Len(t, features[0].Attributes, 1)
	})
}
