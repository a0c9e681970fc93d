package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"zplink/web"
)

type serveFlags struct {
	host      string
	port      int
	namespace string
	noAPI     bool
}

func newServeCmd(gf *globalFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and broker connections",
		Long: `Start the label engine: the printer monitor, MQTT/Valkey/Kafka publishers,
webhooks and the HTTP server hosting the REST API and the /api/events/ws
event stream. Runs until interrupted.`,
		Example: `  # Serve on the configured address
  zplink serve

  # Override the listen port and set the namespace
  zplink serve -p 9000 --namespace dc1-labels`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, gf, flags)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "", "Web server bind address (overrides config)")
	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "Web server port (overrides config)")
	cmd.Flags().StringVar(&flags.namespace, "namespace", "", "Instance namespace for broker topics and keys (saved to config)")
	cmd.Flags().BoolVar(&flags.noAPI, "no-api", false, "Disable the REST API")

	return cmd
}

func runServe(cmd *cobra.Command, gf *globalFlags, flags *serveFlags) error {
	out := cmd.OutOrStdout()

	a, err := openApp(gf, out)
	if err != nil {
		return err
	}

	if flags.namespace != "" {
		if err := a.engine.SetNamespace(flags.namespace); err != nil {
			a.Close()
			return err
		}
	}

	webCfg := a.cfg.Web
	if flags.host != "" {
		webCfg.Host = flags.host
	}
	if flags.port > 0 {
		webCfg.Port = flags.port
	}
	if flags.noAPI {
		webCfg.API.Enabled = false
	}

	a.engine.Start()

	var webServer *web.Server
	if webCfg.Enabled {
		webServer = web.NewServer(&webCfg, a.engine)
		if err := webServer.Start(); err != nil {
			a.Close()
			return fmt.Errorf("start web server: %w", err)
		}
		fmt.Fprintf(out, "Web server: %s\n", webServer.Address())
		if webCfg.API.Enabled {
			fmt.Fprintf(out, "REST API:   %s/api\n", webServer.Address())
		}
	}

	fmt.Fprintf(out, "Namespace:  %s\n", a.engine.GetSettings().Namespace)
	fmt.Fprintln(out, "Running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	fmt.Fprintf(out, "\nReceived %v, shutting down...\n", sig)

	shutdownDone := make(chan struct{})
	go func() {
		if webServer != nil {
			webServer.Stop()
		}
		a.engine.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-time.After(2 * time.Second):
	}

	a.Close()
	fmt.Fprintln(out, "Stopped")
	return nil
}
