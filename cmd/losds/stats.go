package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/kjk/losds/formats"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <file>...",
	Short: "print header stats of containers",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStats,
}

func statsRow(path string) ([]string, error) {
	h, err := formats.Open(path, nil)
	if err != nil {
		return nil, err
	}
	st, err := h.Stats()
	if err != nil {
		return nil, err
	}
	oldest := "-"
	if st.TotalItems() > 0 {
		oldest = fmt.Sprintf("%d", st.OldestItemFormat)
	}
	return []string{
		path,
		st.TypeID,
		string(st.FormatData),
		humanize.Comma(st.TotalItems()),
		humanize.Comma(st.CompressedChunks),
		humanize.Comma(st.UncompressedItems),
		fmt.Sprintf("%.3f", st.Fragmentation()),
		oldest,
		humanize.Bytes(uint64(st.ValidLength)),
		humanize.Bytes(uint64(st.FileSize - st.ValidLength)),
	}, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"file", "type", "data", "items", "chunks", "raw", "frag", "item fmt", "size", "slack"})
	tw.SetBorder(false)
	tw.SetAutoFormatHeaders(false)
	for _, path := range args {
		row, err := statsRow(path)
		if err != nil {
			return err
		}
		tw.Append(row)
	}
	tw.Render()
	return nil
}
