// Package httpdcmd wires the httpd CLI's cobra command tree: a root
// command carrying shared persistent flags (config file, verbosity), and
// serve/fileserver/get/put/post subcommands. Grounded on docker-compose's
// cmd/compose.RootCommand shape (persistent flags parsed in
// PersistentPreRunE, one constructor function per subcommand returning
// *cobra.Command).
package httpdcmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/compose-http/asynchttp/config"
)

type rootOptions struct {
	configFile string
	verbose    bool
	cfg        config.Config
}

// RootCommand returns the httpd root command with every subcommand
// attached.
func RootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "httpd",
		Short:         "single-threaded cooperative HTTP/1.1 server and client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "path to a YAML config file overriding defaults")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		serveCommand(opts),
		fileserverCommand(opts),
		getCommand(opts),
		putCommand(opts),
		postCommand(opts),
	)
	return root
}
