package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"obiscatalog/cmd/catalog/ui"
	"obiscatalog/internal/publish"
	"obiscatalog/internal/store"
)

var (
	publishPrefix string
	publishPrune  bool
	publishBuild  bool

	ledgerLimit int
	ledgerRun   string
	ledgerDOI   string
)

// publishCmd uploads the built site
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the built site to the configured store",
	Long: `Uploads every file of the output directory to the publish store
(publish.driver: fs, s3 or memory). With --prune, objects under the prefix
that the site no longer contains are deleted.`,
	RunE: runPublish,
}

// ledgerCmd shows harvest history
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show recorded harvest runs",
	Long: `Lists recent harvest runs. --run lists the per-DOI outcomes of one run and
--doi lists every recorded outcome for one DOI.`,
	RunE: runLedger,
}

func init() {
	publishCmd.Flags().StringVar(&publishPrefix, "prefix", "", "Key prefix (default: publish.prefix)")
	publishCmd.Flags().BoolVar(&publishPrune, "prune", false, "Delete stale objects under the prefix")
	publishCmd.Flags().BoolVar(&publishBuild, "build", false, "Build the site before publishing")

	ledgerCmd.Flags().IntVar(&ledgerLimit, "limit", 10, "Number of runs to list (0 for all)")
	ledgerCmd.Flags().StringVar(&ledgerRun, "run", "", "Show the items of one run")
	ledgerCmd.Flags().StringVar(&ledgerDOI, "doi", "", "Show the history of one DOI")
}

func runPublish(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if publishBuild {
		c, res, err := buildSite(e)
		if err != nil {
			return err
		}
		printBuild(cmd.OutOrStdout(), e, c, res)
	}

	st, err := publish.Open(ctx, e.cfg.Publish, e.paths.PublishRoot)
	if err != nil {
		return err
	}
	prefix := publishPrefix
	if prefix == "" {
		prefix = e.cfg.Publish.Prefix
	}

	res, err := publish.Publish(ctx, st, e.paths.Output, publish.Options{Prefix: prefix, Prune: publishPrune})
	if err != nil {
		return err
	}
	logger.Info("Site published",
		zap.String("driver", string(st.Driver())),
		zap.Int("uploaded", res.Uploaded),
		zap.Int("deleted", res.Deleted),
		zap.Int64("bytes", res.Bytes))
	fmt.Fprintf(cmd.OutOrStdout(), "Published %d files (%d bytes) to %s store, pruned %d\n",
		res.Uploaded, res.Bytes, st.Driver(), res.Deleted)
	return nil
}

func runLedger(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	ledger, err := store.OpenLedger(e.paths.Ledger)
	if err != nil {
		return err
	}
	defer ledger.Close()

	styles := ui.DefaultStyles()
	out := cmd.OutOrStdout()

	if ledgerRun != "" || ledgerDOI != "" {
		var items []store.ItemRecord
		title := ""
		if ledgerRun != "" {
			items, err = ledger.Items(ctx, ledgerRun)
			title = "Run " + ledgerRun
		} else {
			items, err = ledger.History(ctx, ledgerDOI)
			title = "History of " + ledgerDOI
		}
		if err != nil {
			return err
		}
		t := ui.NewSimpleTable(title, []string{"DOI", "Status", "Error", "Recorded"})
		for _, it := range items {
			t.AddRow(it.DOI, it.Status, it.Error, it.RecordedAt.Format(time.DateTime))
		}
		fmt.Fprintln(out, t.View(styles))
		return nil
	}

	runs, err := ledger.ListRuns(ctx, ledgerLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No harvest runs recorded")
		return nil
	}
	t := ui.NewSimpleTable("Harvest runs", []string{"Run", "Started", "Took", "Force", "Saved", "Unchanged", "Missing", "Failed"})
	for _, r := range runs {
		took := "running"
		if r.Finished() {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		t.AddRow(r.ID, r.StartedAt.Format(time.DateTime), took, strconv.FormatBool(r.Force),
			strconv.Itoa(r.Saved), strconv.Itoa(r.Unchanged), strconv.Itoa(r.Missing), strconv.Itoa(r.Failed))
	}
	fmt.Fprintln(out, t.View(styles))
	return nil
}
