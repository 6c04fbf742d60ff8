package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"parley/internal/api"
)

// deadLetterTable renders preserved failures for interactive terminals.
// Numeric columns (retries, size) are right-aligned.
func deadLetterTable(entries []api.DeadLetter) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "File", "Kind", "Recorded", "Retries", "Size"})

	for _, e := range entries {
		tw.AppendRow(table.Row{
			shortID(e.ID),
			e.AudioFileName,
			e.ErrorKind,
			e.RecordedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", e.RetryCount),
			formatSize(e.FileSizeBytes),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/(1<<10))
	case bytes > 0:
		return fmt.Sprintf("%d B", bytes)
	default:
		return "-"
	}
}
