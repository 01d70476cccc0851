package output

import (
	"encoding/json"
	"io"
)

// PrintJSON encodes v as two-space indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
