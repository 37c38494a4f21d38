// Package preflight checks that the environment can run docindex: free
// disk and a writable data directory, a usable file descriptor limit,
// readable category roots and a reachable embedding provider.
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, cfg, embedder)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
