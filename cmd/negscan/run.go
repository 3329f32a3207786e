// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seqlab/negscan/internal/apiclient"
	"github.com/seqlab/negscan/internal/fetchseq"
	"github.com/seqlab/negscan/internal/genbank"
	"github.com/seqlab/negscan/internal/httpcache"
	"github.com/seqlab/negscan/internal/pipeline"
	"github.com/seqlab/negscan/internal/resolve"
	"github.com/seqlab/negscan/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <uniprot-accession>",
	Short: "Resolve, fetch, and scan the gDNA region for one accession",
	Long: `Run resolves a UniProt accession to genomic coordinates via the
EBI/Ensembl and NCBI registries, fetches the flanked gDNA sequence, scans
it for negative features, and writes an annotated GenBank-style record.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("flank", types.DefaultFlankBP, "flank length in bp added on both sides of the gene span")
	runCmd.Flags().String("flank-mode", string(types.FlankGenomic), "flank expansion mode: genomic or strand_relative")
	runCmd.Flags().String("assembly", "auto", "assembly preference: GRCh38, GRCh37, or auto")
	runCmd.Flags().String("mask", string(types.MaskNone), "repeat masking for fetched sequence: none, soft, or hard")
	runCmd.Flags().String("features", "", "comma-separated feature kinds to scan (default: all)")
	runCmd.Flags().Float64("maf-threshold", 0.01, "drop variants with minor allele frequency below this")
	runCmd.Flags().Int("gc-window", 50, "window size for the extreme-GC scan")
	runCmd.Flags().Int("gc-step", 10, "step size for the extreme-GC scan")
	runCmd.Flags().Float64("gc-min", 30.0, "GC%% below this flags a window")
	runCmd.Flags().Float64("gc-max", 70.0, "GC%% above this flags a window")
	runCmd.Flags().Int("homopolymer-at", 5, "minimum A/T homopolymer run length")
	runCmd.Flags().Int("homopolymer-gc", 4, "minimum G/C homopolymer run length")
	runCmd.Flags().Duration("timeout", types.DefaultTimeout, "per-request HTTP timeout")
	runCmd.Flags().Int("retries", types.DefaultRetries, "retry attempts after the first on transient failures")
	runCmd.Flags().String("cache", "on", "API response cache: on or off")
	runCmd.Flags().String("cache-dir", "data/cache", "directory for the response cache database")
	runCmd.Flags().Int("cache-ttl-hours", types.DefaultCacheTTLHours, "cache entry lifetime in hours")
	runCmd.Flags().Bool("offline", false, "forbid network I/O; serve from cache only")
	runCmd.Flags().Int("taxid", 0, "warn if the resolved organism does not match this taxonomy id")
	runCmd.Flags().String("outdir", "data/output", "directory for output records")
	runCmd.Flags().Bool("write-metadata-json", true, "write the metadata JSON next to the record")
	runCmd.Flags().Bool("verbose", false, "enable structured debug logging")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	accession := strings.TrimSpace(args[0])
	if accession == "" {
		return fmt.Errorf("provide a UniProt accession")
	}

	opts, err := optionsFromFlags(cmd)
	if err != nil {
		return err
	}
	outdir, _ := cmd.Flags().GetString("outdir")
	writeMetadata, _ := cmd.Flags().GetBool("write-metadata-json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	logger := zap.NewNop()
	if verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		defer logger.Sync()
	}

	var store httpcache.Store
	if opts.Client.CacheEnabled {
		sqlStore, err := httpcache.NewSQLiteStore(opts.Client.CachePath)
		if err != nil {
			return fmt.Errorf("opening response cache: %w", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	}

	p := pipeline.New(opts, store, logger)
	bundle, err := p.Run(accession)
	if err != nil {
		return describeFailure(accession, err)
	}

	recordPath, metadataPath, err := genbank.Write(bundle, outdir, writeMetadata)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Wrote %s\n", recordPath)
	if metadataPath != "" {
		fmt.Fprintf(os.Stdout, "Wrote %s\n", metadataPath)
	}
	printFeatureCounts(bundle)
	for _, w := range bundle.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	return nil
}

// optionsFromFlags assembles pipeline options from the run flags,
// falling back to secrets for the NCBI API key.
func optionsFromFlags(cmd *cobra.Command) (pipeline.Options, error) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	retries, _ := cmd.Flags().GetInt("retries")
	cacheFlag, _ := cmd.Flags().GetString("cache")
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	ttlHours, _ := cmd.Flags().GetInt("cache-ttl-hours")
	offline, _ := cmd.Flags().GetBool("offline")

	cacheEnabled, err := parseOnOff(cacheFlag)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("--cache: %w", err)
	}
	if offline && !cacheEnabled {
		return pipeline.Options{}, fmt.Errorf("--offline requires the cache to be enabled")
	}

	client := types.DefaultClientConfig()
	client.Timeout = timeout
	client.Retries = retries
	client.CacheEnabled = cacheEnabled
	client.CachePath = cacheDir
	client.CacheTTLHours = ttlHours
	client.Offline = offline
	if loadedSecrets.ContactEmail != "" {
		client.UserAgent = fmt.Sprintf("%s (%s)", types.DefaultUserAgent, loadedSecrets.ContactEmail)
	}

	flank, _ := cmd.Flags().GetInt("flank")
	flankMode, _ := cmd.Flags().GetString("flank-mode")
	assembly, _ := cmd.Flags().GetString("assembly")
	taxid, _ := cmd.Flags().GetInt("taxid")
	if flank < 0 {
		return pipeline.Options{}, fmt.Errorf("--flank must be non-negative")
	}
	switch types.FlankMode(flankMode) {
	case types.FlankGenomic, types.FlankStrandRelative:
	default:
		return pipeline.Options{}, fmt.Errorf("--flank-mode must be genomic or strand_relative, got %q", flankMode)
	}

	resolveCfg := types.ResolveConfig{
		FlankBP:            flank,
		FlankMode:          types.FlankMode(flankMode),
		AssemblyPreference: assembly,
		TaxIDFilter:        taxid,
		NCBIAPIKey:         loadedSecrets.NCBIAPIKey,
	}

	mask, _ := cmd.Flags().GetString("mask")
	switch types.MaskMode(mask) {
	case types.MaskNone, types.MaskSoft, types.MaskHard:
	default:
		return pipeline.Options{}, fmt.Errorf("--mask must be none, soft, or hard, got %q", mask)
	}
	fetchCfg := types.FetchConfig{Mask: types.MaskMode(mask)}

	scanCfg := types.DefaultScanConfig()
	scanCfg.MAFThreshold, _ = cmd.Flags().GetFloat64("maf-threshold")
	scanCfg.GCWindow, _ = cmd.Flags().GetInt("gc-window")
	scanCfg.GCStep, _ = cmd.Flags().GetInt("gc-step")
	scanCfg.GCMin, _ = cmd.Flags().GetFloat64("gc-min")
	scanCfg.GCMax, _ = cmd.Flags().GetFloat64("gc-max")
	scanCfg.HomopolymerAT, _ = cmd.Flags().GetInt("homopolymer-at")
	scanCfg.HomopolymerGC, _ = cmd.Flags().GetInt("homopolymer-gc")
	if scanCfg.GCWindow <= 0 || scanCfg.GCStep <= 0 {
		return pipeline.Options{}, fmt.Errorf("--gc-window and --gc-step must be positive")
	}

	featuresFlag, _ := cmd.Flags().GetString("features")
	if featuresFlag != "" {
		kinds, err := parseFeatureKinds(featuresFlag)
		if err != nil {
			return pipeline.Options{}, err
		}
		scanCfg.Kinds = kinds
	}

	return pipeline.Options{
		Client:  client,
		Resolve: resolveCfg,
		Fetch:   fetchCfg,
		Scan:    scanCfg,
	}, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func parseFeatureKinds(s string) ([]types.FeatureKind, error) {
	known := map[types.FeatureKind]bool{}
	for _, k := range types.DefaultFeatureKinds {
		known[k] = true
	}
	var kinds []types.FeatureKind
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind := types.FeatureKind(part)
		if !known[kind] {
			return nil, fmt.Errorf("unknown feature kind %q", part)
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("--features must name at least one feature kind")
	}
	return kinds, nil
}

func printFeatureCounts(bundle *types.RecordBundle) {
	counts := bundle.FeatureCounts()
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	fmt.Fprintf(os.Stdout, "Features (%d total):\n", len(bundle.Features))
	for _, k := range kinds {
		fmt.Fprintf(os.Stdout, "  %-20s %d\n", k, counts[types.FeatureKind(k)])
	}
}

// describeFailure maps the pipeline's typed errors onto actionable
// CLI messages.
func describeFailure(accession string, err error) error {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("API request failed for %s: %w", accession, err)
	}
	var noMap *resolve.NoMappingError
	if errors.As(err, &noMap) {
		for _, w := range noMap.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		return fmt.Errorf("no genomic mapping found for %s", accession)
	}
	var mismatch *fetchseq.LengthMismatchError
	if errors.As(err, &mismatch) {
		return fmt.Errorf("sequence fetch for %s returned a malformed region: %w", accession, err)
	}
	return err
}
