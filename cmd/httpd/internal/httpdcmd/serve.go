package httpdcmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/compose-http/asynchttp/eventloop"
	"github.com/compose-http/asynchttp/httpconn"
	"github.com/compose-http/asynchttp/httpserver"
)

func serveCommand(root *rootOptions) *cobra.Command {
	var echo bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP server, replying 200 OK to every request",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			log := logrus.NewEntry(logrus.StandardLogger())

			loop := eventloop.NewChanLoop(1024)
			if err := loop.Start(); err != nil {
				return err
			}
			defer loop.Stop()

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
				OnRequest: func(c *httpconn.Connection) {
					log.WithField("url", c.Request.URL).Info("request")
					if err := c.Response.StartResponse(200); err != nil {
						return
					}
					body := []byte("OK")
					if !echo {
						body = nil
					}
					_ = c.Response.EndWithBody(body)
				},
			}, loop, otel.GetTracerProvider(), otel.GetMeterProvider(), log)
			if err != nil {
				return err
			}
			srv.Serve()
			log.WithField("addr", srv.Addr().String()).Info("serving")

			waitForSignal()
			return srv.StopAsync()
		},
	}
	cmd.Flags().BoolVar(&echo, "echo", true, "reply with body \"OK\" instead of an empty body")
	return cmd
}

func waitForSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs
}
