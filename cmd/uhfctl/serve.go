package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srg/uhfsession/server"
)

type serveOptions struct {
	listen string
	mdns   bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reader session over WebSocket",
		Long: `Expose the reader session as a JSON method channel at ws://<listen>/ws.

Requests are {"id", "method", "arguments"}; replies carry the same id.
Scan results, tags and connectivity samples are pushed as events to the
client that started the stream.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationConfigLogLevel: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.listen, "listen", "l", "", "Listen address (default: config server.listen)")
	cmd.Flags().BoolVar(&opts.mdns, "mdns", false, "Advertise the server over mDNS")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := server.Config{
		Listen:       a.cfg.Server.Listen,
		MDNSEnabled:  a.cfg.Server.MDNSEnabled || opts.mdns,
		MDNSName:     a.cfg.Server.MDNSName,
		StreamBuffer: a.cfg.Session.StreamBuffer,
		Logger:       a.logger,
	}
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.out.status("Serving %s driver on %s", a.cfg.Driver.Kind, cfg.Listen)
	return server.New(a.med, cfg).ListenAndServe(ctx)
}
