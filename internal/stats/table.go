package stats

import (
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Render writes snapshots as a plain text table.
func Render(w io.Writer, snaps ...Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Spider", "Frontier", "Seen requests", "Seen guilds", "Stored records", "Collected at"})
	for _, s := range snaps {
		t.AppendRow(table.Row{
			s.Spider,
			strconv.FormatInt(s.FrontierSize, 10),
			strconv.FormatInt(s.SeenRequests, 10),
			strconv.FormatInt(s.SeenGuilds, 10),
			strconv.FormatInt(s.StoredRecords, 10),
			s.CollectedAt.Format("2006-01-02 15:04:05 MST"),
		})
	}

	t.Render()
}
