package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/nextremer/minarai-client-go/pkg/minarai"
)

var uploadCommand = &cli.Command{
	Name:      "upload",
	Usage:     "Upload an image and print the URL it is served at",
	ArgsUsage: "FILE",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "content-type",
			Usage: "Media type of the file; detected from its contents when unset",
		},
		&cli.StringFlag{
			Name:  "params",
			Usage: "Extra parameters as a JSON object",
		},
	},
	Action: cmdUpload,
}

func cmdUpload(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("you must specify a file")
	}
	path := ctx.Args().Get(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var opts *minarai.SendOptions
	if raw := ctx.String("params"); raw != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(raw), &extra); err != nil {
			return fmt.Errorf("params must be a JSON object: %w", err)
		}
		opts = &minarai.SendOptions{Extra: extra}
	}

	client, err := getConfig(ctx).newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	u, err := client.UploadImage(ctx.Context, data, ctx.String("content-type"), filepath.Base(path), opts)
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}
	fmt.Println(u.String())
	return nil
}
