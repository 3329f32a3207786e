// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scan

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ambiguousPattern matches maximal runs of anything outside A/T/G/C.
var ambiguousPattern = regexp.MustCompile(`[^ATGCatgc]+`)

// gcWindow is one extreme-GC sliding-window candidate, 0-based half-open.
type gcWindow struct {
	start int
	end   int
	gc    float64
}

// scanExtremeGCWindows slides a window of windowSize by step over the
// sequence and emits every window whose GC fraction falls below gcMin
// or above gcMax (both percentages).
func scanExtremeGCWindows(sequence string, windowSize, step int, gcMin, gcMax float64) []gcWindow {
	seq := strings.ToUpper(sequence)
	n := len(seq)
	if windowSize <= 0 || step <= 0 || n < windowSize {
		return nil
	}

	var windows []gcWindow
	for start := 0; start+windowSize <= n; start += step {
		win := seq[start : start+windowSize]
		gcCount := strings.Count(win, "G") + strings.Count(win, "C")
		gc := float64(gcCount) / float64(len(win)) * 100.0
		if gc < gcMin || gc > gcMax {
			windows = append(windows, gcWindow{start: start, end: start + windowSize, gc: gc})
		}
	}
	return windows
}

// mergeGCWindows joins candidates whose starts are within gap of the
// previous merged end, averaging the GC score pairwise as windows join.
func mergeGCWindows(windows []gcWindow, gap int) []gcWindow {
	if len(windows) == 0 {
		return nil
	}
	sorted := append([]gcWindow(nil), windows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	merged := []gcWindow{sorted[0]}
	for _, w := range sorted[1:] {
		cur := &merged[len(merged)-1]
		if w.start <= cur.end+gap {
			if w.end > cur.end {
				cur.end = w.end
			}
			cur.gc = (cur.gc + w.gc) / 2.0
		} else {
			merged = append(merged, w)
		}
	}
	return merged
}

// homopolymerRun is one A/T or G/C run at or above its threshold.
type homopolymerRun struct {
	base  byte
	start int
	end   int
}

// scanHomopolymers finds runs of A or T of length >= atRun and runs of
// G or C of length >= gcRun, matched independently and combined in
// position order.
func scanHomopolymers(sequence string, atRun, gcRun int) []homopolymerRun {
	seq := strings.ToUpper(sequence)
	atPattern := regexp.MustCompile(fmt.Sprintf(`A{%d,}|T{%d,}`, atRun, atRun))
	gcPattern := regexp.MustCompile(fmt.Sprintf(`G{%d,}|C{%d,}`, gcRun, gcRun))

	var runs []homopolymerRun
	for _, span := range atPattern.FindAllStringIndex(seq, -1) {
		runs = append(runs, homopolymerRun{base: seq[span[0]], start: span[0], end: span[1]})
	}
	for _, span := range gcPattern.FindAllStringIndex(seq, -1) {
		runs = append(runs, homopolymerRun{base: seq[span[0]], start: span[0], end: span[1]})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].start < runs[j].start })
	return runs
}

// interval is a 0-based half-open span.
type interval struct {
	start int
	end   int
}

// scanAmbiguous returns maximal runs of non-ACGT characters, merging
// runs that touch or overlap.
func scanAmbiguous(sequence string) []interval {
	raw := ambiguousPattern.FindAllStringIndex(sequence, -1)
	if len(raw) == 0 {
		return nil
	}
	merged := []interval{{start: raw[0][0], end: raw[0][1]}}
	for _, span := range raw[1:] {
		cur := &merged[len(merged)-1]
		if span[0] <= cur.end {
			if span[1] > cur.end {
				cur.end = span[1]
			}
		} else {
			merged = append(merged, interval{start: span[0], end: span[1]})
		}
	}
	return merged
}

// CountInvalidBases reports how many distinct ambiguous runs the
// sequence contains. Used for run summaries.
func CountInvalidBases(sequence string) int {
	return len(ambiguousPattern.FindAllString(sequence, -1))
}
