package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (invalid config, unknown device, negative cap)
	ExitDataError   = 3 // Data error (malformed sample, degenerate or misaligned encoding)
	ExitNotFound    = 4 // Sample not found in the cache
	ExitDeviceError = 5 // Transfer to the target device failed
)
