package main

import (
	"bufio"
	"os"

	"github.com/kjk/losds/formats"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

var dumpPretty bool

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "print items as json, one per line",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	h, err := formats.Open(args[0], nil)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(os.Stdout)
	err = h.EachJSON(func(d []byte) error {
		if dumpPretty {
			d = pretty.Color(pretty.Pretty(d), nil)
			_, err := w.Write(d)
			return err
		}
		if _, err := w.Write(d); err != nil {
			return err
		}
		return w.WriteByte('\n')
	})
	errFlush := w.Flush()
	if err != nil {
		return err
	}
	return errFlush
}
