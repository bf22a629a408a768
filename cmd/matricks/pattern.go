package main

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fkcurrie/matricks-golang/internal/config"
	"github.com/fkcurrie/matricks-golang/internal/types"
)

// patternStep is how long each test pattern stays on the matrix
var patternStep = 2 * time.Second

// testPattern shows solid red, green and blue, then a checkerboard,
// then clears the matrix. Wiring mistakes show up as a broken
// checkerboard.
func testPattern(cfg *config.Config) int {
	controller, logger, closer, err := newController(cfg)
	if err != nil {
		log.Error(err)
		return 1
	}
	defer closer.Close()

	if err := controller.Start(); err != nil {
		logger.Error("Failed to start matrix.", "err", err)
		return 1
	}
	defer controller.Stop(context.Background())

	matrix := cfg.MatrixConfiguration()
	for _, step := range testPatterns(matrix.Width, matrix.Height) {
		logger.Info("Showing test pattern.", "pattern", step.name)
		if err := controller.Update(step.frame); err != nil {
			logger.Error("Failed to show test pattern.", "err", err)
			return 1
		}
		time.Sleep(patternStep)
	}

	logger.Info("Test completed successfully.")
	return 0
}

type pattern struct {
	name  string
	frame types.FrameBuffer
}

func testPatterns(width, height int) []pattern {
	solid := func(c types.Color) types.FrameBuffer {
		frame := types.NewFrameBuffer(width, height)
		for _, row := range frame {
			for x := range row {
				row[x] = c
			}
		}
		return frame
	}

	checker := types.NewFrameBuffer(width, height)
	for y, row := range checker {
		for x := range row {
			if (x+y)%2 == 0 {
				row[x] = types.Color{255, 255, 255, 255}
			}
		}
	}

	return []pattern{
		{"red", solid(types.Color{0, 0, 255, 255})},
		{"green", solid(types.Color{0, 255, 0, 255})},
		{"blue", solid(types.Color{255, 0, 0, 255})},
		{"checkerboard", checker},
	}
}
