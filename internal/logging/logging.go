// Package logging holds the colorized, level-gated log helpers used by the
// command line tools.
package logging

import (
	"log"
	"sync/atomic"

	"github.com/fatih/color"
)

var (
	debugMode   atomic.Bool
	verboseMode atomic.Bool

	// Color functions for different log levels
	colorDebug   = color.New(color.FgCyan).SprintfFunc()
	colorVerbose = color.New(color.FgBlue).SprintfFunc()
	colorInfo    = color.New(color.FgGreen).SprintfFunc()
	colorError   = color.New(color.FgRed, color.Bold).SprintfFunc()
	colorWarning = color.New(color.FgYellow).SprintfFunc()
	colorSuccess = color.New(color.FgGreen, color.Bold).SprintfFunc()

	// ColorKey and ColorValue format "key: value" output lines.
	ColorKey   = color.New(color.FgMagenta).SprintfFunc()
	ColorValue = color.New(color.FgWhite, color.Bold).SprintfFunc()
)

// Configure sets the debug and verbose switches and the log prefix.
func Configure(debug, verbose bool) {
	debugMode.Store(debug)
	verboseMode.Store(verbose)

	log.SetFlags(log.Ldate | log.Ltime)
	if debug {
		log.SetPrefix("[mutter-desktop] ")
	} else {
		log.SetPrefix("")
	}
}

// Debugf prints debug messages if debug mode is enabled
func Debugf(format string, args ...interface{}) {
	if debugMode.Load() {
		log.Print(colorDebug("[DEBUG] "+format, args...))
	}
}

// Verbosef prints verbose messages if verbose or debug mode is enabled
func Verbosef(format string, args ...interface{}) {
	if verboseMode.Load() || debugMode.Load() {
		log.Print(colorVerbose("[VERBOSE] "+format, args...))
	}
}

// Infof prints info messages (always shown)
func Infof(format string, args ...interface{}) {
	log.Print(colorInfo("[INFO] "+format, args...))
}

// Errorf prints error messages (always shown)
func Errorf(format string, args ...interface{}) {
	log.Print(colorError("[ERROR] "+format, args...))
}

// Warningf prints warning messages (always shown)
func Warningf(format string, args ...interface{}) {
	log.Print(colorWarning("[WARNING] "+format, args...))
}

// Successf prints success messages (always shown)
func Successf(format string, args ...interface{}) {
	log.Print(colorSuccess("[SUCCESS] "+format, args...))
}
