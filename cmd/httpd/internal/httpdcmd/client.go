package httpdcmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/compose-http/asynchttp/eventloop"
	"github.com/compose-http/asynchttp/httpclient"
)

func printResponse(resp *httpclient.Response) {
	fmt.Printf("HTTP %d\n", resp.StatusCode)
	for _, h := range resp.Headers {
		fmt.Printf("%s: %s\n", h.Name, h.Value)
	}
	fmt.Println()
	os.Stdout.Write(resp.Body)
	fmt.Println()
}

func withClient(root *rootOptions, fn func(ctx context.Context, c *httpclient.Client) error) error {
	log := logrus.NewEntry(logrus.StandardLogger())
	loop := eventloop.NewChanLoop(64)
	if err := loop.Start(); err != nil {
		return err
	}
	defer loop.Stop()

	client := httpclient.New(loop, log)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), root.cfg.ClientTimeout)
	defer cancel()
	return fn(ctx, client)
}

func getCommand(root *rootOptions) *cobra.Command {
	var keepOpen bool
	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "issue a GET request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(root, func(ctx context.Context, c *httpclient.Client) error {
				resp, err := c.Get(ctx, args[0], keepOpen)
				if err != nil {
					return err
				}
				printResponse(resp)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&keepOpen, "keep-open", false, "keep the connection open after the response (Connection: keep-alive)")
	return cmd
}

func putCommand(root *rootOptions) *cobra.Command {
	var bodyFile string
	var bodyDelay time.Duration
	cmd := &cobra.Command{
		Use:   "put <url>",
		Short: "issue a PUT request with a file body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body []byte
			var err error
			if bodyFile != "" {
				body, err = os.ReadFile(bodyFile)
				if err != nil {
					return err
				}
			}
			return withClient(root, func(ctx context.Context, c *httpclient.Client) error {
				resp, err := c.Put(ctx, args[0], body, bodyDelay)
				if err != nil {
					return err
				}
				printResponse(resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "path to a file whose contents become the request body")
	cmd.Flags().DurationVar(&bodyDelay, "body-delay", 0, "delay between sending headers and body (0 sends both together)")
	return cmd
}

func postCommand(root *rootOptions) *cobra.Command {
	var fieldName, filePath string
	var bodyDelay time.Duration
	cmd := &cobra.Command{
		Use:   "post <url>",
		Short: "upload a file as a multipart/form-data POST",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			return withClient(root, func(ctx context.Context, c *httpclient.Client) error {
				resp, err := c.PostMultipart(ctx, args[0], fieldName, filePath, content, bodyDelay)
				if err != nil {
					return err
				}
				printResponse(resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fieldName, "field", "file", "multipart form field name")
	cmd.Flags().StringVar(&filePath, "file", "", "path to the file to upload")
	cmd.Flags().DurationVar(&bodyDelay, "body-delay", 0, "delay between the multipart preamble and the file body")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
