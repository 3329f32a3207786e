// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seqlab/negscan/pkg/types"
)

// Dedupe removes exact duplicates keyed on (kind, start, end,
// provenance, description, strand), keeping the first occurrence.
func Dedupe(features []types.NegativeFeature) []types.NegativeFeature {
	seen := make(map[string]struct{}, len(features))
	var unique []types.NegativeFeature
	for _, f := range features {
		key := dedupeKey(f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, f)
	}
	return unique
}

func dedupeKey(f types.NegativeFeature) string {
	strand := "nil"
	if f.Strand != nil {
		strand = fmt.Sprintf("%d", *f.Strand)
	}
	return fmt.Sprintf("%s|%d|%d|%s|%s|%s", f.Kind, f.Start, f.End, f.Provenance, f.Description, strand)
}

// MergeByKind merges overlapping or gap-bridged intervals of the same
// kind: union span, maximum of defined scores, distinct descriptions
// joined with "; ", attribute maps unioned with first-seen values
// winning. mergeGaps gives the allowed gap per kind (0 when absent).
// Output is ordered by kind, then (start, end), so repeated merges of
// an already-merged list are stable.
func MergeByKind(features []types.NegativeFeature, mergeGaps map[types.FeatureKind]int) []types.NegativeFeature {
	buckets := make(map[types.FeatureKind][]types.NegativeFeature)
	for _, f := range features {
		buckets[f.Kind] = append(buckets[f.Kind], f)
	}

	kinds := make([]types.FeatureKind, 0, len(buckets))
	for kind := range buckets {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var merged []types.NegativeFeature
	for _, kind := range kinds {
		bucket := buckets[kind]
		sort.Slice(bucket, func(i, j int) bool {
			if bucket[i].Start != bucket[j].Start {
				return bucket[i].Start < bucket[j].Start
			}
			return bucket[i].End < bucket[j].End
		})
		gap := mergeGaps[kind]

		cur := cloneFeature(bucket[0])
		for _, f := range bucket[1:] {
			if f.Start <= cur.End+gap {
				absorb(&cur, f)
			} else {
				merged = append(merged, cur)
				cur = cloneFeature(f)
			}
		}
		merged = append(merged, cur)
	}
	return Dedupe(merged)
}

// containsDescription reports whether desc already appears in the
// "; "-joined accumulated description.
func containsDescription(accumulated, desc string) bool {
	for _, part := range strings.Split(accumulated, "; ") {
		if part == desc {
			return true
		}
	}
	return false
}

// absorb folds src into dst, which precedes or overlaps it.
func absorb(dst *types.NegativeFeature, src types.NegativeFeature) {
	if src.End > dst.End {
		dst.End = src.End
	}
	dst.Score = maxScore(dst.Score, src.Score)
	if src.Description != "" && !containsDescription(dst.Description, src.Description) {
		if dst.Description == "" {
			dst.Description = src.Description
		} else {
			dst.Description = dst.Description + "; " + src.Description
		}
	}
	for k, v := range src.Attributes {
		if _, ok := dst.Attributes[k]; !ok {
			if dst.Attributes == nil {
				dst.Attributes = make(map[string]string)
			}
			dst.Attributes[k] = v
		}
	}
}

func cloneFeature(f types.NegativeFeature) types.NegativeFeature {
	out := f
	if f.Score != nil {
		s := *f.Score
		out.Score = &s
	}
	if f.Strand != nil {
		s := *f.Strand
		out.Strand = &s
	}
	if f.Attributes != nil {
		out.Attributes = make(map[string]string, len(f.Attributes))
		for k, v := range f.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

func maxScore(a, b *float64) *float64 {
	switch {
	case a == nil:
		return copyScore(b)
	case b == nil:
		return copyScore(a)
	case *b > *a:
		return copyScore(b)
	default:
		return copyScore(a)
	}
}

func copyScore(s *float64) *float64 {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
