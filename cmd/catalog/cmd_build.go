package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"obiscatalog/internal/catalog"
	"obiscatalog/internal/logging"
	"obiscatalog/internal/site"
	"obiscatalog/internal/watch"
)

var (
	serveAddr  string
	serveWatch bool
)

// buildCmd builds the collections and renders the site
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the product collections and render the site",
	Long: `Loads data/products/*.json and data/obis-nodes.json, builds the products,
byInstitution, byCategory and byNode collections and renders every page into
the output directory (default _site).`,
	RunE: runBuild,
}

// serveCmd serves the built site
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Build and serve the site locally",
	Long: `Builds the site and serves the output directory under the configured path
prefix. With --watch, changes to products, reference data, content or
templates trigger a rebuild.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Rebuild when inputs change")
}

// buildSite runs one full build and render.
func buildSite(e *env) (*catalog.Collections, *site.Result, error) {
	c, err := catalog.Build(catalog.Options{
		ProductsDir:    e.paths.Products,
		NodesFile:      e.paths.Nodes,
		ValidateSchema: e.cfg.ValidateSchema,
	})
	if err != nil {
		return nil, nil, err
	}
	r, err := site.New(site.OptionsFromConfig(e.cfg, e.paths))
	if err != nil {
		return nil, nil, err
	}
	res, err := r.Render(c)
	if err != nil {
		return nil, nil, err
	}
	return c, res, nil
}

func printBuild(w io.Writer, e *env, c *catalog.Collections, res *site.Result) {
	fmt.Fprintf(w, "Built %d products: %d institutions, %d categories, %d nodes\n",
		len(c.Products), len(c.ByInstitution), len(c.ByCategory), len(c.ByNode))
	fmt.Fprintf(w, "Wrote %d pages, %d content pages, %d assets, copied %d files to %s\n",
		res.Pages, res.ContentPages, res.Assets, res.Copied, e.paths.Output)
}

func runBuild(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	start := time.Now()
	c, res, err := buildSite(e)
	if err != nil {
		return err
	}
	logger.Info("Site built",
		zap.Int("products", len(c.Products)),
		zap.Int("pages", res.Pages),
		zap.Duration("took", time.Since(start)))
	printBuild(cmd.OutOrStdout(), e, c, res)
	return nil
}

// siteHandler serves dir under prefix and redirects the bare root to it.
func siteHandler(dir, prefix string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	if prefix == "" || prefix == "/" {
		return files
	}
	mux := http.NewServeMux()
	mux.Handle(prefix, http.StripPrefix(strings.TrimSuffix(prefix, "/"), files))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, prefix, http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})
	return mux
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	c, res, err := buildSite(e)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printBuild(out, e, c, res)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if serveWatch {
		roots := []string{e.paths.Input}
		if !strings.HasPrefix(e.paths.Data, e.paths.Input) {
			roots = append(roots, e.paths.Data)
		}
		w, err := watch.New(roots, []string{e.paths.Output}, e.cfg.GetWatchDebounce(),
			func(ctx context.Context, changed []string) error {
				logger.Info("Rebuilding", zap.Strings("changed", changed))
				c, res, err := buildSite(e)
				logging.Audit().Rebuild(changed, err)
				if err != nil {
					return err
				}
				printBuild(out, e, c, res)
				return nil
			})
		if err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           siteHandler(e.paths.Output, e.cfg.PathPrefix),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	fmt.Fprintf(out, "Serving %s at http://localhost%s%s\n", e.paths.Output, serveAddr, e.cfg.PathPrefix)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
