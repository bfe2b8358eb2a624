package simulator

import "os"

// ShowHelp prints usage information for the simulate tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Placebadge Walk Simulator
=========================

Walks a random route against a running placebadge service, reporting
jittered readings at every stop and asking for a badge there. Afterwards
it checks that no two collected badges share a cell.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -stops int
        Number of stops on the route (default 20)
  -readings int
        Readings reported at each stop (default 5)
  -workers int
        Concurrent readers per stop (default 4)
  -step float
        Largest distance between two stops in meters (default 1500)
  -radius float
        Cell radius the service uses, in meters (default 1000)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Write the generated route to this file
  -verbose
        Log every stop
  -help
        Show this help message

Examples:
  go run ./cmd/simulate -stops 50 -step 3000
  go run ./cmd/simulate -url http://localhost:8080 -verbose
`)
}
