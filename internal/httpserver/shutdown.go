package httpserver

import "time"

// ShutdownTimeout is used when no explicit shutdown timeout is configured.
var ShutdownTimeout = 10 * time.Second
