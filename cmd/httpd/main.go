// Command httpd exposes the HTTP stack as a CLI: a server (with an
// optional static file root), and GET/PUT/POST-multipart client
// subcommands — grounded on docker-compose's cmd/compose root-command
// shape (a cobra root carrying shared persistent flags, one file per
// subcommand).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/compose-http/asynchttp/cmd/httpd/internal/httpdcmd"
)

func main() {
	if err := httpdcmd.RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
