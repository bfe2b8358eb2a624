package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/placebadge/internal/simulator"
	"github.com/okian/placebadge/pkg/logger"
)

// Default configuration constants.
const (
	defaultStops       = 20
	defaultReadings    = 5
	defaultWorkers     = 4
	defaultStepMeters  = 1500
	defaultRadiusM     = 1000
	defaultTimeout     = 30 * time.Second
	defaultWalkTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		stops      = flag.Int("stops", defaultStops, "Number of stops on the route")
		readings   = flag.Int("readings", defaultReadings, "Readings reported at each stop")
		workers    = flag.Int("workers", defaultWorkers, "Concurrent readers per stop")
		step       = flag.Float64("step", defaultStepMeters, "Largest distance between two stops in meters")
		radius     = flag.Float64("radius", defaultRadiusM, "Cell radius the service uses, in meters")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Write the generated route to this file")
		verbose    = flag.Bool("verbose", false, "Log every stop")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulator.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultWalkTimeout)
	defer cancel()

	config := &simulator.Config{
		BaseURL:         *baseURL,
		Stops:           *stops,
		ReadingsPerStop: *readings,
		Workers:         *workers,
		StepMeters:      *step,
		CellRadiusM:     *radius,
		Timeout:         *timeout,
		OutputFile:      *outputFile,
		Verbose:         *verbose,
	}

	if _, err := simulator.Run(ctx, config); err != nil {
		_, _ = os.Stderr.WriteString("Walk failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
