// Package logging provides opt-in file-based logging with rotation for PingMem.
// When the --debug flag is set, comprehensive logs are written to ~/.pingmem/logs/
// for debugging and troubleshooting.
//
// Without --debug, commands log to stderr only. `pingmem serve` is the
// exception: it always writes debug-level logs to the file (SetupMCPMode).
package logging
