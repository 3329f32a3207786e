// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetchseq retrieves the raw bases for a resolved region from
// whichever registry produced the coordinates.
package fetchseq

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/seqlab/negscan/internal/apiclient"
	"github.com/seqlab/negscan/internal/coord"
	"github.com/seqlab/negscan/pkg/types"
)

// Endpoint bases. Declared as vars so tests can substitute httptest
// servers.
var (
	ensemblSequenceBase = "https://rest.ensembl.org/sequence/region"
	ncbiEFetchURL       = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
)

const (
	// sequenceMaxBP is the provider request ceiling; spans above it
	// are shrunk to sequenceSafetyBP before the request.
	sequenceMaxBP    = 10_000_000
	sequenceSafetyBP = 9_500_000
)

// LengthMismatchError is raised when the fetched base count does not
// equal the requested span length. Always fatal; the sequence is never
// silently truncated or padded.
type LengthMismatchError struct {
	Expected int
	Got      int
	Region   string
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("expected %d nt but received %d nt for %s", e.Expected, e.Got, e.Region)
}

// Fetcher retrieves region sequence through the shared API client.
type Fetcher struct {
	api    *apiclient.Client
	logger *zap.Logger
}

// New builds a Fetcher over the shared API client.
func New(api *apiclient.Client) *Fetcher {
	return &Fetcher{api: api, logger: zap.NewNop()}
}

// SetLogger installs a structured logger. The default is a no-op.
func (f *Fetcher) SetLogger(l *zap.Logger) {
	if l != nil {
		f.logger = l
	}
}

// Fetch returns the upper-cased bases covering the extended span. A
// span above the provider maximum is clamped symmetrically first, with
// a warning. A masked request that returns a mismatched length gets
// exactly one unmasked retry before failing.
func (f *Fetcher) Fetch(coords types.GenomicCoordinates, cfg types.FetchConfig) (string, []string, error) {
	var warnings []string

	start, end := coords.ExtStart, coords.ExtEnd
	if end-start+1 > sequenceMaxBP {
		var clamped bool
		start, end, clamped = coord.ClampRegionLength(start, end, sequenceSafetyBP)
		if clamped {
			warnings = append(warnings, "sequence span exceeded API limit; flank automatically reduced for safety")
			f.logger.Debug("region clamped",
				zap.Int("start", start),
				zap.Int("end", end))
		}
	}

	region := coord.RegionString(coords.SeqRegionName, start, end, coords.Strand)
	expected := end - start + 1

	seq, err := f.fetchRegion(coords, start, end, cfg.Mask)
	if err != nil {
		return "", warnings, err
	}

	if len(seq) != expected && cfg.Mask != types.MaskNone && cfg.Mask != "" {
		// Masking occasionally trips provider length handling; one
		// unmasked retry before giving up.
		warnings = append(warnings, fmt.Sprintf("masked fetch returned %d nt for %d requested; retrying unmasked", len(seq), expected))
		seq, err = f.fetchRegion(coords, start, end, types.MaskNone)
		if err != nil {
			return "", warnings, err
		}
	}
	if len(seq) != expected {
		return "", warnings, &LengthMismatchError{Expected: expected, Got: len(seq), Region: region}
	}

	if start != coords.ExtStart || end != coords.ExtEnd {
		warnings = append(warnings, "sequence region was internally clamped by max request size")
	}
	return strings.ToUpper(seq), warnings, nil
}

func (f *Fetcher) fetchRegion(coords types.GenomicCoordinates, start, end int, mask types.MaskMode) (string, error) {
	if coords.Source == types.SourceNCBI {
		return f.fetchNCBI(coords, start, end)
	}
	return f.fetchEnsembl(coords, start, end, mask)
}

// fetchEnsembl requests sequence/region. Sequence calls bypass the
// cache: clamped spans generate near-duplicate fingerprints that
// would bloat it for no reuse.
func (f *Fetcher) fetchEnsembl(coords types.GenomicCoordinates, start, end int, mask types.MaskMode) (string, error) {
	region := coord.RegionString(coords.SeqRegionName, start, end, coords.Strand)
	params := map[string]string{}
	if mask != "" && mask != types.MaskNone {
		params["mask"] = string(mask)
	}
	resp, err := f.api.Get(
		fmt.Sprintf("%s/%s/%s", ensemblSequenceBase, coords.Species, region),
		map[string]string{"Content-Type": "text/plain"},
		params,
		apiclient.NoCache(),
	)
	if err != nil {
		return "", err
	}
	return normalizeSequenceText(resp.Text), nil
}

// fetchNCBI requests a FASTA slice of the chromosome accession via
// efetch. NCBI has no masking concept for this endpoint; mask mode is
// ignored on this path.
func (f *Fetcher) fetchNCBI(coords types.GenomicCoordinates, start, end int) (string, error) {
	resp, err := f.api.Get(ncbiEFetchURL, nil, map[string]string{
		"db":        "nuccore",
		"id":        coords.SeqRegionName,
		"rettype":   "fasta",
		"retmode":   "text",
		"seq_start": strconv.Itoa(start),
		"seq_stop":  strconv.Itoa(end),
	}, apiclient.NoCache())
	if err != nil {
		return "", err
	}
	return normalizeSequenceText(resp.Text), nil
}

// normalizeSequenceText accepts either a headered block-sequence
// payload (first line starting with '>') or plain concatenated text,
// and returns the joined bases.
func normalizeSequenceText(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	if strings.HasPrefix(lines[0], ">") {
		return strings.Join(lines[1:], "")
	}
	return strings.Join(lines, "")
}
