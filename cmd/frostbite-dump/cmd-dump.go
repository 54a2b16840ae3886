package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/rpcpool/frostbite-dump/internal/dump"
	"github.com/rpcpool/frostbite-dump/internal/zlibframe"
)

func newCmd_Dump() *cli.Command {
	var gameDir string
	var outDir string
	var x360Tool string
	var chunkDir2 string
	var showProgress bool

	return &cli.Command{
		Name:        "dump",
		Description: "Extract a Frostbite 2 game installation's EBX/DBX/RES/chunk assets into a plain directory tree",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "game",
				Usage:       "path to the game's installation directory (containing Data/ and, for DLC, Update/)",
				Required:    true,
				Destination: &gameDir,
			},
			&cli.StringFlag{
				Name:        "out",
				Usage:       "target directory for the extracted tree",
				Required:    true,
				Destination: &outDir,
			},
			&cli.StringFlag{
				Name:        "x360-tool",
				Usage:       "path to an external X360-LZX decompressor executable (takes <input> <output>); only needed for X360 superbundles",
				Destination: &x360Tool,
			},
			&cli.StringFlag{
				Name:        "chunk-overlay",
				Usage:       "secondary chunk directory searched after the dump's own bundles/chunks tree, for asset extraction against a pre-existing dump",
				Destination: &chunkDir2,
			},
			&cli.BoolFlag{
				Name:        "progress",
				Usage:       "show a progress bar while walking TOC files",
				Destination: &showProgress,
			},
		},
		Action: func(c *cli.Context) error {
			opts := dump.Options{}
			if x360Tool != "" {
				opts.X360Tool = func(input, output string) error {
					cmd := exec.CommandContext(c.Context, x360Tool, input, output)
					cmd.Stdout = os.Stdout
					cmd.Stderr = os.Stderr
					return cmd.Run()
				}
			}

			var bar *progressbar.ProgressBar
			if showProgress {
				bar = progressbar.Default(-1, "dumping")
			}
			opts.OnProgress = func(relTocPath string) {
				if bar != nil {
					bar.Add(1)
				}
				klog.V(1).Infof("done: %s", relTocPath)
			}

			zlibframe.OnFallbackWarning = func(reason string) {
				klog.Warning(reason)
			}

			ctx, err := dump.NewContext(outDir, opts)
			if err != nil {
				return fmt.Errorf("dump: %w", err)
			}

			dataDir := filepath.Join(gameDir, "Data")
			patchDir := filepath.Join(gameDir, "Update", "Patch", "Data")

			if err := ctx.LoadCatalog(dataDir, patchDir); err != nil {
				return err
			}

			dlcRoot := filepath.Join(gameDir, "Update")
			dlcDirs, err := os.ReadDir(dlcRoot)
			if err == nil {
				for _, entry := range dlcDirs {
					if !entry.IsDir() || entry.Name() == "Patch" {
						continue
					}
					dlcDataDir := filepath.Join(dlcRoot, entry.Name(), "Data")
					if _, statErr := os.Stat(dlcDataDir); statErr != nil {
						continue
					}
					klog.Infof("dumping DLC %s", entry.Name())
					if err := ctx.DumpRoot(dlcDataDir, patchDir); err != nil {
						return fmt.Errorf("dump dlc %s: %w", entry.Name(), err)
					}
				}
			}

			klog.Info("dumping base game")
			if err := ctx.DumpRoot(dataDir, patchDir); err != nil {
				return fmt.Errorf("dump base game: %w", err)
			}

			klog.Info("extracting sound/movie assets")
			if err := ctx.ExtractAssets(chunkDir2); err != nil {
				return fmt.Errorf("extract assets: %w", err)
			}

			if bar != nil {
				bar.Finish()
			}

			return ctx.Finish()
		},
	}
}
