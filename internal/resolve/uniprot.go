// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"fmt"
	"strings"
)

// uniprotEntryBase is the UniProtKB entry endpoint
// ({base}/{accession}.json). Declared as a var so tests can substitute
// an httptest server.
var uniprotEntryBase = "https://rest.uniprot.org/uniprotkb"

// uniprotEntry is the subset of a UniProtKB record the resolver uses:
// organism classification, gene aliases, and cross-references.
type uniprotEntry struct {
	PrimaryAccession string `json:"primaryAccession"`
	Organism         struct {
		ScientificName string   `json:"scientificName"`
		TaxonID        int      `json:"taxonId"`
		Lineage        []string `json:"lineage"`
	} `json:"organism"`
	Genes []struct {
		GeneName struct {
			Value string `json:"value"`
		} `json:"geneName"`
		Synonyms []struct {
			Value string `json:"value"`
		} `json:"synonyms"`
	} `json:"genes"`
	CrossReferences []uniprotXref `json:"uniProtKBCrossReferences"`
}

type uniprotXref struct {
	Database   string `json:"database"`
	ID         string `json:"id"`
	Properties []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"properties"`
}

func (r *Resolver) fetchUniProtEntry(accession string) (*uniprotEntry, error) {
	resp, err := r.api.Get(
		fmt.Sprintf("%s/%s.json", uniprotEntryBase, accession),
		map[string]string{"Accept": "application/json"},
		nil,
	)
	if err != nil {
		return nil, err
	}
	var entry uniprotEntry
	if err := resp.JSON(&entry); err != nil {
		return nil, fmt.Errorf("parsing UniProt entry: %w", err)
	}
	return &entry, nil
}

// geneAliases collects the gene name and synonyms from the entry,
// most specific first, without duplicates.
func geneAliases(entry *uniprotEntry) []string {
	if entry == nil {
		return nil
	}
	seen := make(map[string]bool)
	var aliases []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			return
		}
		seen[strings.ToLower(name)] = true
		aliases = append(aliases, name)
	}
	for _, g := range entry.Genes {
		add(g.GeneName.Value)
		for _, syn := range g.Synonyms {
			add(syn.Value)
		}
	}
	return aliases
}

// accessionHints collects genomic accession candidates (EMBL and
// RefSeq cross-references) used to pick among NCBI gene summaries.
func accessionHints(entry *uniprotEntry) map[string]bool {
	hints := make(map[string]bool)
	if entry == nil {
		return hints
	}
	for _, xref := range entry.CrossReferences {
		switch xref.Database {
		case "EMBL", "RefSeq":
			if xref.ID != "" {
				hints[stripVersion(xref.ID)] = true
			}
			for _, prop := range xref.Properties {
				if strings.Contains(strings.ToLower(prop.Key), "nucleotide") && prop.Value != "" {
					hints[stripVersion(prop.Value)] = true
				}
			}
		}
	}
	return hints
}

// ensemblGeneFromXrefs scans the entry's own cross-reference list for
// a gene id in Ensembl format. Last-resort source after the EBI
// coordinates service and the mapping job.
func ensemblGeneFromXrefs(entry *uniprotEntry) string {
	if entry == nil {
		return ""
	}
	for _, xref := range entry.CrossReferences {
		if !strings.Contains(strings.ToLower(xref.Database), "ensembl") {
			continue
		}
		for _, prop := range xref.Properties {
			if id := normalizeEnsemblGeneID(prop.Value); id != "" {
				return id
			}
		}
		if id := normalizeEnsemblGeneID(xref.ID); id != "" {
			return id
		}
	}
	return ""
}

// stripVersion drops a trailing ".N" version suffix from an accession.
func stripVersion(accession string) string {
	if idx := strings.LastIndex(accession, "."); idx > 0 {
		suffix := accession[idx+1:]
		if suffix != "" && isDigits(suffix) {
			return accession[:idx]
		}
	}
	return accession
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
