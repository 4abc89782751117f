package main

import "os"

// shutdownSignals lists the OS signals that trigger graceful shutdown.
// signals_unix.go adds SIGTERM where it exists.
var shutdownSignals = []os.Signal{os.Interrupt}
