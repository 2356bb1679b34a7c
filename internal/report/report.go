package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/mescon/Archivarr/internal/domain"
)

// Format is the on-disk encoding of a run report.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the encoding from the file extension. Anything other than
// .yaml or .yml is written as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Marshal encodes r in the given format.
func Marshal(format Format, r *domain.RunReport) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("no report to encode")
	}

	var buf bytes.Buffer
	switch format {
	case FormatYAML:
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(r); err != nil {
			return nil, fmt.Errorf("failed to encode report as yaml: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode report as yaml: %w", err)
		}
	case FormatJSON:
		encoder := json.NewEncoder(&buf)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(r); err != nil {
			return nil, fmt.Errorf("failed to encode report as json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
	return buf.Bytes(), nil
}

// Write saves r to path on fs, creating the parent directory if needed.
func Write(fs afero.Fs, path string, r *domain.RunReport) error {
	data, err := Marshal(FormatFor(path), r)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
