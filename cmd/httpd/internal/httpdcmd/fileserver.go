package httpdcmd

import (
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/compose-http/asynchttp/eventloop"
	"github.com/compose-http/asynchttp/fileserver"
	"github.com/compose-http/asynchttp/httpserver"
	"github.com/compose-http/asynchttp/ioreactor"
)

func fileserverCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fileserver [root]",
		Short: "serve static files out of a root directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			dir := cfg.FileServerRoot
			if len(args) == 1 {
				dir = args[0]
			}
			log := logrus.NewEntry(logrus.StandardLogger())

			loop := eventloop.NewChanLoop(1024)
			if err := loop.Start(); err != nil {
				return err
			}
			defer loop.Stop()

			reactor := ioreactor.New(loop, cfg.ReactorWorkers)
			handler := fileserver.New(dir, reactor, clockwork.NewRealClock(), log)

			srv, err := httpserver.New(httpserver.Config{
				Addr:                     cfg.Addr,
				ArenaSize:                cfg.ArenaSize,
				MaxHeaderSize:            cfg.MaxHeaderSize,
				MaxNumHeaders:            cfg.MaxNumHeaders,
				MaxRequestsPerConnection: cfg.MaxRequestsPerConnection,
				DefaultKeepAlive:         cfg.DefaultKeepAlive,
				BufferCount:              cfg.BufferCount,
				BufferSize:               cfg.BufferSize,
				ReactorWorkers:           cfg.ReactorWorkers,
				OnRequest:                handler.ServeHTTP,
			}, loop, otel.GetTracerProvider(), otel.GetMeterProvider(), log)
			if err != nil {
				return err
			}
			srv.Serve()
			log.WithField("addr", srv.Addr().String()).WithField("root", dir).Info("serving files")

			waitForSignal()
			return srv.StopAsync()
		},
	}
	return cmd
}
