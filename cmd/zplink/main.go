// zplink renders NetBox inventory labels as ZPL and sends them to networked
// Zebra printers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zplink/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logFile    string
	logDebug   string
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "zplink",
		Short: "NetBox label printing for Zebra printers",
		Long: `zplink renders labels for NetBox objects (cables, devices, racks and more)
as ZPL and sends them to Zebra printers over raw TCP on port 9100.

Run "zplink serve" for the REST API, or use the print and generate
commands directly from the shell.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&gf.configPath, "config", config.DefaultPath(), "Path to configuration file")
	pf.StringVar(&gf.logFile, "log", "", "Write log messages to file")
	pf.StringVar(&gf.logDebug, "log-debug", "", "Write protocol debug log to debug.log (filter: printer,zpl,jobs,mqtt,kafka,valkey,push or all)")
	pf.Lookup("log-debug").NoOptDefVal = "all"

	rootCmd.AddCommand(newServeCmd(gf))
	rootCmd.AddCommand(newPrintCmd(gf))
	rootCmd.AddCommand(newGenerateCmd(gf))
	rootCmd.AddCommand(newTemplateCmd(gf))
	rootCmd.AddCommand(newPrinterCmd(gf))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
