package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v2"
)

const (
	flagCount       = "count"
	flagCatalog     = "catalog"
	flagConcurrency = "concurrency"
	flagAttempts    = "attempts"
	flagComfyURL    = "comfy-url"
	flagOutputDir   = "comfy-output"
	flagDestDir     = "dest"
	flagLimit       = "limit"
	flagArchive     = "archive"
)

var version = "dev"

var commands = []*cli.Command{
	{
		Name:  "run",
		Usage: "Generate product images in batches and copy them into the asset tree",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    flagCount,
				Usage:   "Number of images to generate.",
				EnvVars: []string{"TARGET_COUNT"},
			},
			&cli.StringFlag{
				Name:    flagCatalog,
				Usage:   "Product catalog file (.csv or .json). Built-in products are used when empty.",
				EnvVars: []string{"CATALOG_PATH"},
			},
			&cli.IntFlag{
				Name:    flagConcurrency,
				Usage:   "Jobs in flight per chunk.",
				EnvVars: []string{"BATCH_CONCURRENCY"},
			},
			&cli.IntFlag{
				Name:    flagAttempts,
				Usage:   "Maximum attempts per job.",
				EnvVars: []string{"MAX_ATTEMPTS"},
			},
			&cli.StringFlag{
				Name:    flagComfyURL,
				Usage:   "Base URL of the generation backend.",
				EnvVars: []string{"COMFY_URL"},
			},
			&cli.StringFlag{
				Name:    flagOutputDir,
				Usage:   "The backend's output directory.",
				EnvVars: []string{"COMFY_OUTPUT_DIR"},
			},
			&cli.StringFlag{
				Name:    flagDestDir,
				Usage:   "Root of the destination asset tree.",
				EnvVars: []string{"DEST_DIR"},
			},
			&cli.StringFlag{
				Name:  flagArchive,
				Usage: "Also write the collected images into this zip file.",
			},
		},
		Action: runBatch,
	},
	{
		Name:  "health",
		Usage: "Check that the generation backend is reachable",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagComfyURL,
				Usage:   "Base URL of the generation backend.",
				EnvVars: []string{"COMFY_URL"},
			},
		},
		Action: runHealth,
	},
	{
		Name:  "runs",
		Usage: "List recent runs from the ledger (requires DATABASE_URL)",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  flagLimit,
				Usage: "Number of runs to show.",
				Value: 20,
			},
		},
		Action: runList,
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "genbatch",
		Usage:    "Batch product image generation against a ComfyUI backend",
		Version:  version,
		Commands: commands,
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "genbatch: %v\n", err)
		os.Exit(1)
	}
}
