package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"obiscatalog/internal/browser"
	"obiscatalog/internal/fetch"
	"obiscatalog/internal/harvest"
	"obiscatalog/internal/obis"
	"obiscatalog/internal/store"
)

var (
	harvestForce   bool
	harvestBrowser bool
	enrichInsts    bool
)

// harvestCmd refreshes product records from DOI landing pages
var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest schema.org metadata for every whitelisted DOI",
	Long: `Reads the DOI whitelist, fetches each DOI landing page, extracts its
schema.org JSON-LD and writes data/products/<id>.json. Records whose content
did not change are left alone unless --force is set. Every run is recorded in
the harvest ledger.`,
	RunE: runHarvest,
}

// fetchNodesCmd downloads the OBIS node list
var fetchNodesCmd = &cobra.Command{
	Use:   "fetch-nodes",
	Short: "Download the OBIS node list to data/obis-nodes.json",
	RunE:  runFetchNodes,
}

// fetchInstitutesCmd downloads the OBIS institute list
var fetchInstitutesCmd = &cobra.Command{
	Use:   "fetch-institutes",
	Short: "Download the OBIS institute list to data/obis-institutes.json",
	Long: `Downloads the institutes known to OBIS, keeping only entries with an id.
With --enrich, each institute is merged with its OceanExpert record.`,
	RunE: runFetchInstitutes,
}

func init() {
	harvestCmd.Flags().BoolVar(&harvestForce, "force", false, "Rewrite records even when unchanged")
	harvestCmd.Flags().BoolVar(&harvestBrowser, "browser", false, "Render landing pages in a headless browser")
	fetchInstitutesCmd.Flags().BoolVar(&enrichInsts, "enrich", false, "Merge OceanExpert details into each institute")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	dois, err := harvest.LoadWhitelist(e.paths.Whitelist)
	if err != nil {
		return err
	}
	mappings, err := harvest.LoadMappings(e.paths.Mappings)
	if err != nil {
		return err
	}

	ledger, err := store.OpenLedger(e.paths.Ledger)
	if err != nil {
		return err
	}
	defer ledger.Close()

	h := &harvest.Harvester{
		ProductsDir: e.paths.Products,
		Mappings:    mappings,
		Force:       harvestForce,
		Resolver:    e.cfg.Harvest.Resolver,
		Recorder:    ledger,
	}

	if harvestBrowser || e.cfg.Harvest.Browser {
		sm := browser.NewSessionManager(browser.ConfigFrom(e.cfg.Browser, e.cfg.Harvest.UserAgent))
		if err := sm.Start(ctx); err != nil {
			return fmt.Errorf("failed to start browser: %w", err)
		}
		defer sm.Shutdown(context.Background())
		h.Fetcher = sm
		if interval := e.cfg.GetHarvestInterval(); interval > 0 {
			h.Limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
		logger.Info("Harvesting with headless browser", zap.String("control_url", sm.ControlURL()))
	} else {
		h.Fetcher = &harvest.HTTPFetcher{
			Client: fetch.NewClient(e.cfg.Harvest.UserAgent, e.cfg.GetHarvestTimeout(), e.cfg.GetHarvestInterval()),
		}
	}

	logger.Info("Starting harvest", zap.Int("dois", len(dois)), zap.Bool("force", harvestForce))
	report, err := h.Run(ctx, dois)
	if report != nil {
		printHarvest(cmd.OutOrStdout(), report)
	}
	return err
}

func printHarvest(w io.Writer, r *harvest.Report) {
	for _, it := range r.Items {
		switch it.Outcome {
		case harvest.OutcomeFailed:
			fmt.Fprintf(w, "  x %s: %v\n", it.DOI, it.Err)
		case harvest.OutcomeNoMetadata:
			fmt.Fprintf(w, "  ? %s: no schema.org metadata\n", it.DOI)
		case harvest.OutcomeSaved:
			fmt.Fprintf(w, "  + %s -> %s\n", it.DOI, it.Path)
		}
	}
	fmt.Fprintf(w, "Harvest %s: %d saved, %d unchanged, %d without metadata, %d failed (%s)\n",
		r.RunID, r.Saved, r.Unchanged, r.Missing, r.Failed, r.Duration.Round(time.Millisecond))
}

func obisClient(e *env) *obis.Client {
	return &obis.Client{
		HTTP:           fetch.NewClient(e.cfg.Harvest.UserAgent, e.cfg.GetHarvestTimeout(), 0),
		APIURL:         e.cfg.OBIS.APIURL,
		OceanExpertURL: e.cfg.OBIS.OceanExpertURL,
		Concurrency:    e.cfg.OBIS.EnrichConcurrency,
	}
}

func runFetchNodes(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	nodes, err := obisClient(e).FetchNodes(ctx)
	if err != nil {
		return err
	}
	if err := obis.Save(e.paths.Nodes, nodes); err != nil {
		return err
	}
	logger.Info("Saved OBIS nodes", zap.Int("count", obis.Count(nodes)), zap.String("path", e.paths.Nodes))
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d nodes to %s\n", obis.Count(nodes), e.paths.Nodes)
	return nil
}

func runFetchInstitutes(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	insts, err := obisClient(e).FetchInstitutes(ctx, enrichInsts)
	if err != nil {
		return err
	}
	if err := obis.Save(e.paths.Institutes, insts); err != nil {
		return err
	}
	logger.Info("Saved OBIS institutes", zap.Int("count", len(insts)), zap.Bool("enriched", enrichInsts))
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d institutes to %s\n", len(insts), e.paths.Institutes)
	return nil
}
