package main

import (
	"time"

	"github.com/kjk/losds/formats"
	"github.com/kjk/losds/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	compactForce bool
	compactJobs  int
)

var compactCmd = &cobra.Command{
	Use:   "compact <file>...",
	Short: "rewrite fragmented containers",
	Long: `
Rewrites containers that are fragmented, hold items in an old format or,
with --force, all of them. Items are sorted and de-duplicated if the format
does that.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompact,
}

// compactOne returns true if the file was rewritten
func compactOne(path string, force bool) (bool, error) {
	h, err := formats.Open(path, nil)
	if err != nil {
		return false, err
	}
	before, err := h.Stats()
	if err != nil {
		return false, err
	}
	start := time.Now()
	rewrote, err := h.Initialise(force)
	if err != nil || !rewrote {
		if err == nil {
			log.Logf("%s: no need to compact\n", path)
		}
		return false, err
	}
	after, err := h.Stats()
	if err != nil {
		return true, err
	}
	dur := time.Since(start)
	log.Logf("%s: %d => %d bytes, fragmentation %.3f => %.3f in %s\n", path, before.ValidLength, after.ValidLength,
		before.Fragmentation(), after.Fragmentation(), dur)
	log.EventWithDuration("compact", dur, "path", path, "type", h.TypeID(), "before", before.ValidLength, "after", after.ValidLength)
	return true, nil
}

func runCompact(cmd *cobra.Command, args []string) error {
	var g errgroup.Group
	g.SetLimit(max(compactJobs, 1))
	for _, path := range args {
		g.Go(func() error {
			_, err := compactOne(path, compactForce)
			return err
		})
	}
	return g.Wait()
}
