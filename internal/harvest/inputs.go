package harvest

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"obiscatalog/internal/logging"
)

// LoadWhitelist reads one DOI per line. Blank lines and lines starting with
// '#' are skipped.
func LoadWhitelist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open whitelist: %w", err)
	}
	defer f.Close()

	var dois []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dois = append(dois, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read whitelist: %w", err)
	}
	return dois, nil
}

// Mapping attaches OBIS nodes and institutions to a DOI.
type Mapping struct {
	DOI          string           `yaml:"doi"`
	OBISNodes    []map[string]any `yaml:"obis_nodes"`
	Institutions []map[string]any `yaml:"institutions"`
}

type mappingsFile struct {
	Products []Mapping `yaml:"products"`
}

// LoadMappings reads the mappings file. A missing file yields no mappings.
func LoadMappings(path string) ([]Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.HarvestWarn("%s not found, continuing without mappings", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read mappings: %w", err)
	}
	var mf mappingsFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse mappings %s: %w", path, err)
	}
	return mf.Products, nil
}

// findMapping returns the first mapping whose DOI equals doi exactly.
func findMapping(mappings []Mapping, doi string) *Mapping {
	for i := range mappings {
		if mappings[i].DOI == doi {
			return &mappings[i]
		}
	}
	return nil
}
