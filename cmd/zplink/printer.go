package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zplink/config"
)

func newPrinterCmd(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "printer",
		Aliases: []string{"printers"},
		Short:   "Manage and probe label printers",
	}
	cmd.AddCommand(newPrinterListCmd(gf))
	cmd.AddCommand(newPrinterAddCmd(gf))
	cmd.AddCommand(newPrinterRemoveCmd(gf))
	cmd.AddCommand(newPrinterCheckCmd(gf))
	cmd.AddCommand(newPrinterStatusCmd(gf))
	cmd.AddCommand(newPrinterTestLabelCmd(gf))
	return cmd
}

func newPrinterListCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured printers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s %-24s %-5s %-12s %s\n", "NAME", "ADDRESS", "DPI", "STATUS", "LOCATION")
			for _, p := range a.engine.ListPrinters() {
				fmt.Fprintf(out, "%-20s %-24s %-5d %-12s %s\n", p.Name, p.Address, p.GetDPI(), p.Status, p.Location)
			}
			return nil
		},
	}
}

type printerAddFlags struct {
	host        string
	port        int
	dpi         int
	status      string
	location    string
	description string
	charset     string
}

func newPrinterAddCmd(gf *globalFlags) *cobra.Command {
	flags := &printerAddFlags{}

	cmd := &cobra.Command{
		Use:     "add <name>",
		Short:   "Add a printer to the configuration",
		Example: `  zplink printer add rack-row-3 --host 10.20.0.15 --dpi 203 --location "Row 3"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			pc := config.DefaultPrinterConfig(args[0], flags.host)
			pc.Port = flags.port
			pc.DPI = flags.dpi
			pc.Status = config.PrinterStatus(flags.status)
			pc.Location = flags.location
			pc.Description = flags.description
			pc.Charset = flags.charset
			if err := a.engine.CreatePrinter(pc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added printer %s (%s)\n", pc.Name, pc.Endpoint())
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "", "Printer hostname or IP address")
	cmd.Flags().IntVar(&flags.port, "port", 9100, "Raw TCP port")
	cmd.Flags().IntVar(&flags.dpi, "dpi", 300, "Print resolution (203 or 300)")
	cmd.Flags().StringVar(&flags.status, "status", string(config.PrinterActive), "active, offline or maintenance")
	cmd.Flags().StringVar(&flags.location, "location", "", "Placement note")
	cmd.Flags().StringVar(&flags.description, "description", "", "Description")
	cmd.Flags().StringVar(&flags.charset, "charset", "", "Wire charset (default utf-8)")
	cmd.MarkFlagRequired("host")
	return cmd
}

func newPrinterRemoveCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a printer from the configuration",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.DeletePrinter(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed printer %s\n", args[0])
			return nil
		},
	}
}

func newPrinterCheckCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check <name>",
		Short: "Test TCP connectivity to a printer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			state, res, err := a.engine.CheckPrinter(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !state.Online {
				return fmt.Errorf("%s is offline: %s", args[0], res.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is online\n", args[0])
			return nil
		},
	}
}

func newPrinterStatusCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Query the printer host status (~HS)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.engine.PrinterStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if st == nil {
				return fmt.Errorf("%s did not answer the status query", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Online:  %s\n", st.Online)
			if st.Paper != "" {
				fmt.Fprintf(out, "Paper:   %s\n", st.Paper)
			}
			if st.Ribbon != "" {
				fmt.Fprintf(out, "Ribbon:  %s\n", st.Ribbon)
			}
			if st.Structured {
				fmt.Fprintf(out, "Ready:   %v\n", st.Ready())
				fmt.Fprintf(out, "Paused:  %v\n", st.Paused)
				fmt.Fprintf(out, "Head:    open=%v\n", st.HeadOpen)
				fmt.Fprintf(out, "Buffer:  %d formats, full=%v\n", st.FormatsInBuffer, st.BufferFull)
			} else {
				fmt.Fprintf(out, "Raw:     %q\n", st.RawResponse)
			}
			return nil
		},
	}
}

func newPrinterTestLabelCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-label <name>",
		Short: "Print a test label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.PrintTestLabel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("test label on %s failed: %s", args[0], res.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test label sent to %s (%d bytes)\n", args[0], res.BytesSent)
			return nil
		},
	}
}
