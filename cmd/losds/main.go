// losds inspects and maintains container files
package main

import (
	"fmt"
	"os"

	"github.com/kjk/losds/log"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	logDir  string
)

var rootCmd = &cobra.Command{
	Use:   "losds [command] (flags)",
	Short: "inspect and maintain losds container files",
	Long:  ``,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Verbose = verbose
		if logDir != "" {
			log.Init(&log.Config{Dir: logDir})
		}
	},
	SilenceUsage: true,
}

func main() {
	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		statsCmd,
		compactCmd,
		dumpCmd,
		exportCmd,
		importCmd,
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(
		&logDir, "log-dir", "", "also log to daily files in this directory")

	compactCmd.Flags().BoolVarP(
		&compactForce, "force", "f", false, "rewrite even if not fragmented")
	compactCmd.Flags().IntVarP(
		&compactJobs, "jobs", "j", 4, "number of files compacted at the same time")

	dumpCmd.Flags().BoolVarP(
		&dumpPretty, "pretty", "p", false, "indent and colorize json")

	importCmd.Flags().StringVar(
		&importType, "type", "", "type id of a new container (detected for existing ones)")
	importCmd.Flags().StringVar(
		&importFormat, "format", "lz4", "chunk format: raw, deflate, lz4, lz4hc")
	importCmd.Flags().StringVar(
		&importRegion, "region", "", "format data stored in the header of a new container")
	importCmd.Flags().BoolVar(
		&importAutoRewrite, "auto-rewrite", false, "compact after import if fragmented")

	err := rootCmd.Execute()
	log.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
