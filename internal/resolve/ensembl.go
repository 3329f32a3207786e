// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seqlab/negscan/pkg/types"
)

// Endpoint bases for the Ensembl resolution path. Declared as vars so
// tests can substitute httptest servers.
var (
	ebiCoordinatesBase      = "https://www.ebi.ac.uk/proteins/api/coordinates"
	uniprotIDMapRunURL      = "https://rest.uniprot.org/idmapping/run"
	uniprotIDMapStatusBase  = "https://rest.uniprot.org/idmapping/status"
	uniprotIDMapResultsBase = "https://rest.uniprot.org/idmapping/results"
	ensemblLookupBase       = "https://rest.ensembl.org/lookup/id"
)

const (
	// idMapPollAttempts bounds the mapping-job poll loop; the job is
	// declared incomplete after this many status checks.
	idMapPollAttempts = 20
	idMapPollDelay    = 1500 * time.Millisecond

	// parentLookupDepth caps how many parent links a non-gene lookup
	// result is followed through before giving up. Cycle protection.
	parentLookupDepth = 3
)

// ensemblGenePattern matches an Ensembl gene id after version
// stripping, including species-prefixed forms (ENSG..., ENSMUSG...).
var ensemblGenePattern = regexp.MustCompile(`(?i)^ENS[A-Z]*G\d{6,}$`)

// normalizeEnsemblGeneID strips a trailing version suffix and returns
// the upper-cased id when it matches the gene-id pattern, "" otherwise.
func normalizeEnsemblGeneID(raw string) string {
	id := stripVersion(strings.TrimSpace(raw))
	if ensemblGenePattern.MatchString(id) {
		return strings.ToUpper(id)
	}
	return ""
}

// resolveEnsembl runs the primary-registry path: coordinates-by-
// accession, then the identifier-mapping job, then the canonical
// entry's own cross-references, followed by a direct gene lookup.
func (r *Resolver) resolveEnsembl(accession string, entry *uniprotEntry) (*types.GenomicCoordinates, []string) {
	var warnings []string

	geneID, ws := r.ensemblGeneID(accession, entry)
	warnings = append(warnings, ws...)
	if geneID == "" {
		return nil, warnings
	}

	lookup, err := r.lookupGene(geneID)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("Ensembl lookup failed for %s: %v", geneID, err))
		return nil, warnings
	}

	return &types.GenomicCoordinates{
		GeneID:        lookup.ID,
		Source:        types.SourceEnsembl,
		Species:       lookup.speciesName(),
		AssemblyName:  lookup.AssemblyName,
		SeqRegionName: lookup.SeqRegionName,
		GeneStart:     lookup.Start,
		GeneEnd:       lookup.End,
		Strand:        lookup.strandOrDefault(),
		DisplayName:   lookup.DisplayName,
		TaxID:         lookup.TaxonomyID,
	}, warnings
}

// ensemblGeneID finds an Ensembl gene identifier for the accession,
// trying the EBI coordinates service, then the UniProt mapping job,
// then the canonical entry's cross-references.
func (r *Resolver) ensemblGeneID(accession string, entry *uniprotEntry) (string, []string) {
	var warnings []string

	geneID, ws, err := r.geneIDFromCoordinates(accession)
	warnings = append(warnings, ws...)
	if err != nil {
		// EBI failure is an enumerated fallback point, not fatal.
		warnings = append(warnings, fmt.Sprintf("EBI coordinates lookup failed: %v", err))
	}
	if geneID != "" {
		return geneID, warnings
	}

	geneID, ws = r.geneIDFromMappingJob(accession)
	warnings = append(warnings, ws...)
	if geneID != "" {
		return geneID, warnings
	}

	if geneID = ensemblGeneFromXrefs(entry); geneID != "" {
		warnings = append(warnings, "Ensembl gene id recovered from UniProt cross-references")
		return geneID, warnings
	}
	return "", warnings
}

// ebiCoordEntry is one candidate from the EBI coordinates service.
type ebiCoordEntry struct {
	EnsemblGeneID   string `json:"ensemblGeneId"`
	CrossReferences []struct {
		DBDisplayName string `json:"dbDisplayName"`
		ID            string `json:"id"`
		Accession     string `json:"accession"`
	} `json:"crossReferences"`
}

// geneIDFromCoordinates queries the coordinates-by-accession endpoint.
// Multiple equally valid candidates resolve to the first, with a
// warning; candidate order is whatever the service returned.
func (r *Resolver) geneIDFromCoordinates(accession string) (string, []string, error) {
	resp, err := r.api.Get(
		fmt.Sprintf("%s/%s", ebiCoordinatesBase, accession),
		map[string]string{"Accept": "application/json"},
		nil,
	)
	if err != nil {
		return "", nil, err
	}

	var entries []ebiCoordEntry
	if err := resp.JSON(&entries); err != nil {
		// The service returns a bare object for single matches.
		var single ebiCoordEntry
		if err := resp.JSON(&single); err != nil {
			return "", nil, errors.New("invalid EBI response structure")
		}
		entries = []ebiCoordEntry{single}
	}

	var candidates []string
	for _, e := range entries {
		if id := e.geneID(); id != "" {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return "", nil, nil
	}

	var warnings []string
	if len(candidates) > 1 {
		warnings = append(warnings, "multiple EBI coordinate candidates found; selected first valid one")
	}
	return candidates[0], warnings, nil
}

// geneID extracts an Ensembl gene id from the entry's direct field or
// its cross-references. Only references whose display name mentions
// Ensembl are considered.
func (e ebiCoordEntry) geneID() string {
	if id := normalizeEnsemblGeneID(e.EnsemblGeneID); id != "" {
		return id
	}
	for _, ref := range e.CrossReferences {
		if !strings.Contains(strings.ToLower(ref.DBDisplayName), "ensembl") {
			continue
		}
		if id := normalizeEnsemblGeneID(ref.ID); id != "" {
			return id
		}
		if id := normalizeEnsemblGeneID(ref.Accession); id != "" {
			return id
		}
	}
	return ""
}

// geneIDFromMappingJob submits a UniProt→Ensembl bulk mapping job and
// polls it to completion. Job failure or non-completion is a warning;
// the caller falls through to the next source.
func (r *Resolver) geneIDFromMappingJob(accession string) (string, []string) {
	var warnings []string

	run, err := r.api.Post(uniprotIDMapRunURL,
		map[string]string{"Content-Type": "application/json"},
		map[string]string{"from": "UniProtKB_AC-ID", "to": "Ensembl", "ids": accession})
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("UniProt mapping job submit failed: %v", err))
		return "", warnings
	}

	var submitted struct {
		JobID string `json:"jobId"`
	}
	if err := run.JSON(&submitted); err != nil || submitted.JobID == "" {
		return "", warnings
	}

	if !r.pollMappingJob(submitted.JobID) {
		warnings = append(warnings, "UniProt mapping job did not complete")
		return "", warnings
	}

	results, err := r.api.Get(
		fmt.Sprintf("%s/%s", uniprotIDMapResultsBase, submitted.JobID),
		map[string]string{"Accept": "application/json"},
		nil,
	)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("UniProt mapping results fetch failed: %v", err))
		return "", warnings
	}
	return geneIDFromMappingResults(results.Text), warnings
}

// pollMappingJob checks the job status with a fixed delay between
// attempts, bounded at idMapPollAttempts. Returns true only on a
// finished status.
func (r *Resolver) pollMappingJob(jobID string) bool {
	for attempt := 0; attempt < idMapPollAttempts; attempt++ {
		resp, err := r.api.Get(
			fmt.Sprintf("%s/%s", uniprotIDMapStatusBase, jobID),
			map[string]string{"Accept": "application/json"},
			nil,
		)
		if err == nil {
			var status struct {
				JobStatus string `json:"jobStatus"`
			}
			if resp.JSON(&status) == nil {
				switch status.JobStatus {
				case "FINISHED", "COMPLETED", "FINISHED_WITH_WARNINGS":
					return true
				case "ERROR":
					return false
				}
			}
		}
		r.sleepPoll()
	}
	return false
}

// sleepPoll is split out so tests can stub the delay.
var pollDelayFn = time.Sleep

func (r *Resolver) sleepPoll() {
	pollDelayFn(idMapPollDelay)
}

// geneIDFromMappingResults extracts the first Ensembl-format gene id
// from a mapping-results payload.
func geneIDFromMappingResults(body string) string {
	var payload struct {
		Results []struct {
			To json.RawMessage `json:"to"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return ""
	}
	for _, item := range payload.Results {
		// "to" is either a bare id string or an object with a primary
		// accession, depending on the mapping target.
		var target string
		if err := json.Unmarshal(item.To, &target); err == nil {
			if id := normalizeEnsemblGeneID(target); id != "" {
				return id
			}
			continue
		}
		var obj struct {
			PrimaryAccession string `json:"toPrimaryAccession"`
			To               string `json:"to"`
		}
		if err := json.Unmarshal(item.To, &obj); err == nil {
			if id := normalizeEnsemblGeneID(obj.PrimaryAccession); id != "" {
				return id
			}
			if id := normalizeEnsemblGeneID(obj.To); id != "" {
				return id
			}
		}
	}
	return ""
}

// ensemblLookup is the subset of an Ensembl lookup/id record the
// resolver consumes.
type ensemblLookup struct {
	ID            string          `json:"id"`
	ObjectType    string          `json:"object_type"`
	Parent        string          `json:"Parent"`
	Species       json.RawMessage `json:"species"`
	AssemblyName  string          `json:"assembly_name"`
	SeqRegionName string          `json:"seq_region_name"`
	Start         int             `json:"start"`
	End           int             `json:"end"`
	Strand        int             `json:"strand"`
	DisplayName   string          `json:"display_name"`
	TaxonomyID    int             `json:"taxonomy_id"`
}

// speciesName tolerates both the string and object forms Ensembl uses
// for the species field.
func (l ensemblLookup) speciesName() string {
	var name string
	if err := json.Unmarshal(l.Species, &name); err == nil && name != "" {
		return name
	}
	var obj struct {
		Name           string `json:"name"`
		DisplayName    string `json:"display_name"`
		ScientificName string `json:"scientific_name"`
	}
	if err := json.Unmarshal(l.Species, &obj); err == nil {
		for _, candidate := range []string{obj.Name, obj.DisplayName, obj.ScientificName} {
			if candidate != "" {
				return candidate
			}
		}
	}
	return "unknown"
}

func (l ensemblLookup) strandOrDefault() int {
	if l.Strand == -1 {
		return -1
	}
	return 1
}

// lookupGene fetches the gene record for id. When the id resolves to a
// non-gene object (transcript, translation) with a parent reference,
// the parent chain is followed through a bounded loop until a
// gene-typed record appears.
func (r *Resolver) lookupGene(geneID string) (*ensemblLookup, error) {
	current := geneID
	for depth := 0; depth <= parentLookupDepth; depth++ {
		resp, err := r.api.Get(
			fmt.Sprintf("%s/%s", ensemblLookupBase, current),
			map[string]string{"Content-Type": "application/json"},
			map[string]string{"expand": "0"},
		)
		if err != nil {
			return nil, err
		}
		var lookup ensemblLookup
		if err := resp.JSON(&lookup); err != nil {
			return nil, fmt.Errorf("parsing Ensembl lookup: %w", err)
		}
		if lookup.ObjectType == "" || lookup.ObjectType == "Gene" {
			if lookup.ID == "" {
				lookup.ID = current
			}
			return &lookup, nil
		}
		if lookup.Parent == "" {
			return nil, fmt.Errorf("lookup for %s resolved to %s with no parent", current, lookup.ObjectType)
		}
		r.logger.Debug("following parent link",
			zap.String("from", current),
			zap.String("to", lookup.Parent),
			zap.Int("depth", depth+1))
		current = lookup.Parent
	}
	return nil, fmt.Errorf("no gene record within %d parent links of %s", parentLookupDepth, geneID)
}
