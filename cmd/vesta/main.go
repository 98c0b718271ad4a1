// Vesta is a cluster-aware HTTP request-dispatch engine.
//
// It routes incoming requests through a composable middleware pipeline,
// guards handlers with deadlines and panic recovery, and forwards requests
// whose routes belong to a different worker group to the loopback peer that
// owns them.
//
// Usage:
//
//	# Start a worker with the default configuration
//	vesta run
//
//	# Start with a custom configuration file
//	vesta run --config /path/to/config.yaml
//
//	# Start as a specific cluster worker
//	vesta run --worker utility
//
//	# Validate a configuration file without starting
//	vesta validate
//
//	# Show version information
//	vesta version
package main

func main() {
	Execute()
}
