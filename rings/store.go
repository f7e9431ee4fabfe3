package rings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quantfoundry/affiliate-fraud-pipeline/schema"
)

// CatalogueFile is the persisted ring catalogue name under the transformed
// data directory.
const CatalogueFile = "fraud_rings.json"

// ParseFile parses the laundering-scheme report at path.
func ParseFile(path string) ([]schema.Ring, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open patterns report %s: %w", path, err)
	}
	defer f.Close()

	result, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse patterns report %s: %w", path, err)
	}
	return result, nil
}

// Save persists the ring catalogue as JSON under dir.
func Save(dir string, catalogue []schema.Ring) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, CatalogueFile)

	data, err := json.MarshalIndent(catalogue, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode ring catalogue: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write ring catalogue %s: %w", path, err)
	}
	return path, nil
}

// Load reads a previously persisted ring catalogue from dir.
func Load(dir string) ([]schema.Ring, error) {
	path := filepath.Join(dir, CatalogueFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("required ring catalogue %s is missing: %w", path, err)
	}

	var catalogue []schema.Ring
	if err := json.Unmarshal(data, &catalogue); err != nil {
		return nil, fmt.Errorf("failed to decode ring catalogue %s: %w", path, err)
	}
	return catalogue, nil
}
