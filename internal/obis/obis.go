// Package obis downloads the OBIS node and institute reference lists the
// catalog resolves product metadata against.
package obis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"obiscatalog/internal/fetch"
	"obiscatalog/internal/logging"
)

const (
	DefaultAPIURL         = "https://api.obis.org"
	DefaultOceanExpertURL = "https://oceanexpert.org/api/v1"
)

// Client talks to the OBIS API and, for enrichment, to OceanExpert.
type Client struct {
	HTTP           *fetch.Client
	APIURL         string
	OceanExpertURL string
	// Concurrency bounds parallel OceanExpert requests. Values below 1 mean 1.
	Concurrency int
}

func (c *Client) api(path string) string {
	base := c.APIURL
	if base == "" {
		base = DefaultAPIURL
	}
	return strings.TrimRight(base, "/") + path
}

func (c *Client) oceanExpert(path string) string {
	base := c.OceanExpertURL
	if base == "" {
		base = DefaultOceanExpertURL
	}
	return strings.TrimRight(base, "/") + path
}

func (c *Client) getJSON(ctx context.Context, url string) (any, error) {
	body, err := c.HTTP.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return v, nil
}

// FetchNodes downloads the node list and returns the payload unchanged.
func (c *Client) FetchNodes(ctx context.Context) (any, error) {
	url := c.api("/node")
	logging.OBIS("fetching OBIS nodes from %s", url)
	start := time.Now()
	v, err := c.getJSON(ctx, url)
	logging.Audit().Fetch(url, Count(v), time.Since(start), err)
	return v, err
}

// FetchInstitutes downloads the institute list and drops entries without an
// id. With enrich set, each institute gains an "oceanexpert" object holding
// its OceanExpert record; institutes whose lookup fails are kept as they are.
// The result keeps the API order.
func (c *Client) FetchInstitutes(ctx context.Context, enrich bool) ([]map[string]any, error) {
	url := c.api("/institute")
	logging.OBIS("fetching OBIS institutes from %s", url)
	start := time.Now()
	v, err := c.getJSON(ctx, url)
	if err != nil {
		logging.Audit().Fetch(url, 0, time.Since(start), err)
		return nil, err
	}
	institutes := withID(results(v))
	logging.OBIS("found %d institutes with ids", len(institutes))
	logging.Audit().Fetch(url, len(institutes), time.Since(start), nil)

	if !enrich || len(institutes) == 0 {
		return institutes, nil
	}

	limit := c.Concurrency
	if limit < 1 {
		limit = 1
	}
	details := make([]any, len(institutes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, inst := range institutes {
		i := i
		id := idString(inst["id"])
		g.Go(func() error {
			d, err := c.getJSON(gctx, c.oceanExpert("/institute/"+id+".json"))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logging.OBISWarn("could not fetch OceanExpert details for %s: %v", id, err)
				return nil
			}
			details[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	enriched := make([]map[string]any, len(institutes))
	for i, inst := range institutes {
		if details[i] == nil {
			enriched[i] = inst
			continue
		}
		merged := make(map[string]any, len(inst)+1)
		for k, v := range inst {
			merged[k] = v
		}
		merged["oceanexpert"] = details[i]
		enriched[i] = merged
	}
	return enriched, nil
}

// results unwraps {"results": [...]} payloads. A bare array is returned as is.
func results(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		if list, ok := t["results"].([]any); ok {
			return list
		}
	}
	return nil
}

func withID(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok || idString(obj["id"]) == "" {
			continue
		}
		out = append(out, obj)
	}
	return out
}

func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
	case json.Number:
		if t.String() == "0" {
			return ""
		}
	}
	return fmt.Sprint(v)
}

// Count returns the number of entries in a payload saved by Save.
func Count(v any) int {
	switch t := v.(type) {
	case []map[string]any:
		return len(t)
	default:
		return len(results(v))
	}
}

// Save writes v to path as two-space indented JSON, creating parent directories.
func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logging.OBIS("saved %d entries to %s", Count(v), path)
	return nil
}
