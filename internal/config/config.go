package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all catalog configuration.
type Config struct {
	// Site settings
	PathPrefix      string    `yaml:"path_prefix"`
	Dir             DirConfig `yaml:"dir"`
	TemplateFormats []string  `yaml:"template_formats"`
	Passthrough     []string  `yaml:"passthrough"`
	SiteTitle       string    `yaml:"site_title"`

	// Product schema validation at load time
	ValidateSchema bool `yaml:"validate_schema"`

	Harvest HarvestConfig `yaml:"harvest"`
	OBIS    OBISConfig    `yaml:"obis"`
	Browser BrowserConfig `yaml:"browser"`
	Publish PublishConfig `yaml:"publish"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Watch   WatchConfig   `yaml:"watch"`

	Logging LoggingConfig `yaml:"logging"`
}

// DirConfig names the input/output directories, relative to the workspace.
type DirConfig struct {
	Input    string `yaml:"input"`
	Output   string `yaml:"output"`
	Includes string `yaml:"includes"`
	Data     string `yaml:"data"`
}

// HarvestConfig configures the DOI harvester.
type HarvestConfig struct {
	UserAgent string `yaml:"user_agent"`
	Interval  string `yaml:"interval"` // pause between requests
	Timeout   string `yaml:"timeout"`  // per request
	Browser   bool   `yaml:"browser"`  // render landing pages in headless Chrome
	Resolver  string `yaml:"resolver"` // prefixed to each DOI
	Whitelist string `yaml:"whitelist"`
	Mappings  string `yaml:"mappings"`
}

// OBISConfig configures the OBIS reference fetchers.
type OBISConfig struct {
	APIURL            string `yaml:"api_url"`
	OceanExpertURL    string `yaml:"oceanexpert_url"`
	EnrichConcurrency int    `yaml:"enrich_concurrency"`
}

// BrowserConfig configures the headless browser fetcher.
type BrowserConfig struct {
	DebuggerURL         string   `yaml:"debugger_url"`
	Launch              []string `yaml:"launch"`
	Headless            bool     `yaml:"headless"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
}

// PublishConfig selects the blob store that receives the built site.
type PublishConfig struct {
	Driver    string `yaml:"driver"` // fs, s3, memory
	Root      string `yaml:"root"`   // fs driver root
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// LedgerConfig configures the harvest ledger database.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// WatchConfig configures rebuild-on-change.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PathPrefix: "/obis-products-catalog-eleventy/",
		Dir: DirConfig{
			Input:    ".",
			Output:   "_site",
			Includes: "_includes",
			Data:     "data",
		},
		TemplateFormats: []string{"njk", "md", "html", "json"},
		Passthrough:     []string{"css", "js"},
		SiteTitle:       "OBIS Products Catalog",

		Harvest: HarvestConfig{
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Interval:  "500ms",
			Timeout:   "60s",
			Resolver:  "https://doi.org/",
			Whitelist: "whitelist.txt",
			Mappings:  "mappings.yaml",
		},

		OBIS: OBISConfig{
			APIURL:            "https://api.obis.org",
			OceanExpertURL:    "https://oceanexpert.org/api/v1",
			EnrichConcurrency: 4,
		},

		Browser: BrowserConfig{
			Headless:            true,
			NavigationTimeoutMs: 30000,
		},

		Publish: PublishConfig{
			Driver: "fs",
			Root:   "publish",
			Region: "us-east-1",
		},

		Ledger: LedgerConfig{
			Path: ".catalog/ledger.db",
		},

		Watch: WatchConfig{
			Debounce: "300ms",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CATALOG_PATH_PREFIX"); v != "" {
		c.PathPrefix = v
	}
	if v := os.Getenv("CATALOG_OUTPUT_DIR"); v != "" {
		c.Dir.Output = v
	}
	if v := os.Getenv("CATALOG_DATA_DIR"); v != "" {
		c.Dir.Data = v
	}

	if v := os.Getenv("CATALOG_PUBLISH_DRIVER"); v != "" {
		c.Publish.Driver = v
	}
	if v := os.Getenv("CATALOG_S3_BUCKET"); v != "" {
		c.Publish.Bucket = v
	}
	if v := os.Getenv("CATALOG_S3_REGION"); v != "" {
		c.Publish.Region = v
	}
	if v := os.Getenv("CATALOG_S3_ENDPOINT"); v != "" {
		c.Publish.Endpoint = v
	}
	if v := os.Getenv("CATALOG_S3_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Publish.PathStyle = b
		}
	}
}

// ValidPublishDrivers lists the supported blob store drivers.
var ValidPublishDrivers = []string{"fs", "s3", "memory"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Dir.Output == "" {
		return fmt.Errorf("dir.output must not be empty")
	}
	if c.Dir.Data == "" {
		return fmt.Errorf("dir.data must not be empty")
	}
	if filepath.Clean(c.Dir.Output) == filepath.Clean(c.Dir.Input) {
		return fmt.Errorf("dir.output (%s) must differ from dir.input", c.Dir.Output)
	}
	if !strings.HasPrefix(c.PathPrefix, "/") || !strings.HasSuffix(c.PathPrefix, "/") {
		return fmt.Errorf("path_prefix must start and end with '/': %q", c.PathPrefix)
	}

	valid := false
	for _, d := range ValidPublishDrivers {
		if c.Publish.Driver == d {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid publish driver: %s (valid: %v)", c.Publish.Driver, ValidPublishDrivers)
	}
	if c.Publish.Driver == "s3" && c.Publish.Bucket == "" {
		return fmt.Errorf("publish.bucket required for s3 driver (or set CATALOG_S3_BUCKET)")
	}

	return nil
}

// SupportsFormat reports whether a template format (file extension without dot) is enabled.
func (c *Config) SupportsFormat(format string) bool {
	format = strings.TrimPrefix(format, ".")
	for _, f := range c.TemplateFormats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// Paths resolves the configured directories against a workspace root.
type Paths struct {
	Input       string
	Output      string
	Includes    string
	Data        string
	Products    string
	Nodes       string
	Institutes  string
	Whitelist   string
	Mappings    string
	Ledger      string
	PublishRoot string
}

// Resolve returns absolute-or-workspace-relative paths for every input and output.
func (c *Config) Resolve(workspace string) Paths {
	if workspace == "" {
		workspace = "."
	}
	join := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(workspace, p)
	}
	input := join(c.Dir.Input)
	data := join(c.Dir.Data)
	return Paths{
		Input:       input,
		Output:      join(c.Dir.Output),
		Includes:    filepath.Join(input, c.Dir.Includes),
		Data:        data,
		Products:    filepath.Join(data, "products"),
		Nodes:       filepath.Join(data, "obis-nodes.json"),
		Institutes:  filepath.Join(data, "obis-institutes.json"),
		Whitelist:   filepath.Join(data, c.Harvest.Whitelist),
		Mappings:    filepath.Join(data, c.Harvest.Mappings),
		Ledger:      join(c.Ledger.Path),
		PublishRoot: join(c.Publish.Root),
	}
}

// GetHarvestInterval returns the pause between harvest requests.
func (c *Config) GetHarvestInterval() time.Duration {
	d, err := time.ParseDuration(c.Harvest.Interval)
	if err != nil || d < 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetHarvestTimeout returns the per-request harvest timeout.
func (c *Config) GetHarvestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Harvest.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// GetWatchDebounce returns the watcher debounce window.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 300 * time.Millisecond
	}
	return d
}
