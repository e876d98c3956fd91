// Package report renders job results for the CLI and exports the scoring
// ledger for spreadsheet review.
package report

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Formats accepted by Render.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Render writes v to w in the requested format.
func Render(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "report: encode json")
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close() //nolint:errcheck
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "report: encode yaml")
		}
		return nil
	}
	return eris.Errorf("report: unknown format %q", format)
}
