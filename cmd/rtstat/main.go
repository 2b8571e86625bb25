// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// rtstat drives the geometry pipeline for a number of
// frames and reports acceleration structure and memory
// statistics.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"gviegas/rt/engine"
)

func main() {
	app := &cli.App{
		Name:  "rtstat",
		Usage: "report acceleration structure statistics for a scene",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "scene",
				Usage: "glTF scene to load (.gltf or .glb); a builtin scene is used when unset",
			},
			&cli.IntFlag{
				Name:  "frames",
				Value: 4,
				Usage: "number of frames to run",
			},
			&cli.IntFlag{
				Name:  "cull-mask",
				Value: engine.MaskWorldAll,
				Usage: "world partitions that rays traverse",
			},
			&cli.BoolFlag{
				Name:  "no-sky",
				Usage: "do not mark world 2 instances as sky",
			},
			&cli.BoolFlag{
				Name:  "v",
				Usage: "enable verbose logging",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "rtstat:", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	if ctx.Bool("v") {
		engine.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}
	frames := ctx.Int("frames")
	if frames < 1 {
		return fmt.Errorf("invalid frame count %d", frames)
	}

	var (
		sd  *sceneData
		err error
	)
	if path := ctx.String("scene"); path != "" {
		sd, err = loadGLTF(path)
		if err != nil {
			return err
		}
	} else {
		sd = builtinScene()
	}

	// Synthetic indices; a real renderer would decode
	// images into a texture table here.
	var reg engine.TexRegistry
	for i, m := range sd.materials {
		n := uint32(1 + 4*i)
		reg.Register(m, engine.TexSet{n, n + 1, n + 2, n + 3})
	}

	s, err := engine.NewScene(&reg)
	if err != nil {
		return err
	}
	defer s.Free()

	if err := uploadStatic(s, sd); err != nil {
		return err
	}
	cullMask := ctx.Int("cull-mask")
	allowSky := !ctx.Bool("no-sky")
	frame := 0
	for i := range frames {
		frame = i % engine.MaxFrame
		if err := runFrame(s, sd, i, frame, cullMask, allowSky); err != nil {
			return err
		}
	}

	report(os.Stdout, sd, s.Stats(frame))
	return nil
}
