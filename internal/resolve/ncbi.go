// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/seqlab/negscan/pkg/types"
)

// NCBI E-utilities endpoints. Declared as vars so tests can substitute
// httptest servers.
var (
	ncbiESearchURL  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	ncbiESummaryURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esummary.fcgi"
)

// ncbiSearchLimit caps how many gene ids one term may return.
const ncbiSearchLimit = 20

// resolveNCBI runs the secondary-registry path: a ranked gene-term
// search against the NCBI gene index, followed by summary selection.
func (r *Resolver) resolveNCBI(accession string, entry *uniprotEntry, cfg types.ResolveConfig) (*types.GenomicCoordinates, []string) {
	var warnings []string

	aliases := geneAliases(entry)
	if len(aliases) == 0 {
		warnings = append(warnings, "no gene aliases available for NCBI search")
		return nil, warnings
	}
	hints := accessionHints(entry)

	ids, term := r.searchGeneIDs(aliases, entry, cfg)
	if len(ids) == 0 {
		warnings = append(warnings, "NCBI gene search returned no candidates")
		return nil, warnings
	}
	r.logger.Debug("ncbi candidates",
		zap.String("term", term),
		zap.Int("count", len(ids)))

	summaries, err := r.fetchSummaries(ids, cfg)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("NCBI summary fetch failed: %v", err))
		return nil, warnings
	}

	best := chooseSummary(summaries, hints, aliases)
	if best == nil {
		warnings = append(warnings, "no NCBI gene summary carried a usable genomic span")
		return nil, warnings
	}

	start := best.ChrStart + 1 // esummary spans are 0-based
	end := best.ChrStop + 1
	strand := 1
	if start > end {
		start, end = end, start
		strand = -1
	}

	return &types.GenomicCoordinates{
		GeneID:             best.UID,
		Source:             types.SourceNCBI,
		SecondaryAccession: best.ChrAccVer,
		Species:            best.Organism.ScientificName,
		AssemblyName:       best.assemblyLabel(),
		SeqRegionName:      best.ChrAccVer,
		GeneStart:          start,
		GeneEnd:            end,
		Strand:             strand,
		DisplayName:        best.Name,
		TaxID:              best.Organism.TaxID,
	}, warnings
}

// searchGeneIDs tries ranked query terms per alias, most specific
// first, until any term returns candidate ids. The winning term is
// returned for logging.
func (r *Resolver) searchGeneIDs(aliases []string, entry *uniprotEntry, cfg types.ResolveConfig) ([]string, string) {
	for _, alias := range aliases {
		for _, term := range rankedTerms(alias, entry) {
			ids, err := r.esearch(term, cfg)
			if err != nil {
				continue
			}
			if len(ids) > 0 {
				return ids, term
			}
		}
	}
	return nil, ""
}

// rankedTerms builds the query ladder for one alias: gene name scoped
// by taxonomy id, then by scientific name, then the bare gene field,
// then the alias alone.
func rankedTerms(alias string, entry *uniprotEntry) []string {
	var terms []string
	if entry != nil && entry.Organism.TaxonID > 0 {
		terms = append(terms, fmt.Sprintf("%s[gene] AND txid%d[orgn]", alias, entry.Organism.TaxonID))
	}
	if entry != nil && entry.Organism.ScientificName != "" {
		terms = append(terms, fmt.Sprintf("%s[gene] AND \"%s\"[orgn]", alias, entry.Organism.ScientificName))
	}
	terms = append(terms, fmt.Sprintf("%s[gene]", alias), alias)
	return terms
}

func (r *Resolver) esearch(term string, cfg types.ResolveConfig) ([]string, error) {
	params := map[string]string{
		"db":      "gene",
		"term":    term,
		"retmode": "json",
		"retmax":  strconv.Itoa(ncbiSearchLimit),
	}
	if cfg.NCBIAPIKey != "" {
		params["api_key"] = cfg.NCBIAPIKey
	}
	resp, err := r.api.Get(ncbiESearchURL, nil, params)
	if err != nil {
		return nil, err
	}
	var payload struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := resp.JSON(&payload); err != nil {
		return nil, fmt.Errorf("parsing esearch response: %w", err)
	}
	return payload.ESearchResult.IDList, nil
}

// geneSummary is the subset of an esummary gene document used for
// selection.
type geneSummary struct {
	UID          string
	Name         string
	OtherAliases string
	ChrAccVer    string
	ChrStart     int
	ChrStop      int
	AssemblyName string
	Organism     struct {
		ScientificName string
		TaxID          int
	}
}

func (g geneSummary) assemblyLabel() string {
	if g.AssemblyName != "" {
		return g.AssemblyName
	}
	return "unknown"
}

// aliasSet returns the summary's aliases, lower-cased, including its
// primary name.
func (g geneSummary) aliasSet() map[string]bool {
	set := map[string]bool{strings.ToLower(g.Name): true}
	for _, a := range strings.Split(g.OtherAliases, ",") {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			set[a] = true
		}
	}
	return set
}

// fetchSummaries retrieves structured summaries for the candidate ids,
// preserving the uids order the service reports. Summaries without a
// well-formed numeric start/stop/accession triple are dropped here.
func (r *Resolver) fetchSummaries(ids []string, cfg types.ResolveConfig) ([]geneSummary, error) {
	params := map[string]string{
		"db":      "gene",
		"id":      strings.Join(ids, ","),
		"retmode": "json",
	}
	if cfg.NCBIAPIKey != "" {
		params["api_key"] = cfg.NCBIAPIKey
	}
	resp, err := r.api.Get(ncbiESummaryURL, nil, params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result map[string]any `json:"result"`
	}
	if err := resp.JSON(&payload); err != nil {
		return nil, fmt.Errorf("parsing esummary response: %w", err)
	}

	order, _ := payload.Result["uids"].([]any)
	var summaries []geneSummary
	for _, rawUID := range order {
		uid, ok := rawUID.(string)
		if !ok {
			continue
		}
		doc, ok := payload.Result[uid].(map[string]any)
		if !ok {
			continue
		}
		summary, ok := parseGeneSummary(uid, doc)
		if !ok {
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func parseGeneSummary(uid string, doc map[string]any) (geneSummary, bool) {
	g := geneSummary{UID: uid}
	if name, ok := doc["name"].(string); ok {
		g.Name = name
	}
	if aliases, ok := doc["otheraliases"].(string); ok {
		g.OtherAliases = aliases
	}
	if org, ok := doc["organism"].(map[string]any); ok {
		if name, ok := org["scientificname"].(string); ok {
			g.Organism.ScientificName = name
		}
		if taxid, ok := org["taxid"].(float64); ok {
			g.Organism.TaxID = int(taxid)
		}
	}

	infos, ok := doc["genomicinfo"].([]any)
	if !ok || len(infos) == 0 {
		return g, false
	}
	info, ok := infos[0].(map[string]any)
	if !ok {
		return g, false
	}
	accession, _ := info["chraccver"].(string)
	start, startOK := info["chrstart"].(float64)
	stop, stopOK := info["chrstop"].(float64)
	if accession == "" || !startOK || !stopOK {
		return g, false
	}
	g.ChrAccVer = accession
	g.ChrStart = int(start)
	g.ChrStop = int(stop)
	if assembly, ok := info["assemblyaccver"].(string); ok {
		g.AssemblyName = assembly
	}
	return g, true
}

// chooseSummary picks the best candidate: an exact genomic-accession
// hint match wins, then alias overlap with the known gene names, then
// the first summary with any usable span.
func chooseSummary(summaries []geneSummary, hints map[string]bool, aliases []string) *geneSummary {
	for i := range summaries {
		if hints[stripVersion(summaries[i].ChrAccVer)] {
			return &summaries[i]
		}
	}
	for i := range summaries {
		set := summaries[i].aliasSet()
		for _, alias := range aliases {
			if set[strings.ToLower(alias)] {
				return &summaries[i]
			}
		}
	}
	if len(summaries) > 0 {
		return &summaries[0]
	}
	return nil
}
