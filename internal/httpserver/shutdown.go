package httpserver

import "time"

// ShutdownTimeout bounds how long Run waits for in-flight requests after cancellation.
var ShutdownTimeout = 10 * time.Second
