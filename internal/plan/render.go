package plan

import (
	"encoding/json"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteTable prints decisions as an aligned table.
func WriteTable(w io.Writer, decisions []Decision) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Stage", "Key", "Flag", "Source", "Branch", "Result"})
	for _, d := range decisions {
		result := "run"
		if !d.Run {
			result = "skip (" + d.Reason + ")"
		}
		t.AppendRow(table.Row{d.Stage, d.Key, d.Flag, d.Source, allowed(d.BranchAllowed), result})
	}
	t.Render()
}

func allowed(b bool) string {
	if b {
		return "allowed"
	}
	return "denied"
}

// WriteJSON prints decisions as an indented JSON array.
func WriteJSON(w io.Writer, decisions []Decision) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(decisions)
}
