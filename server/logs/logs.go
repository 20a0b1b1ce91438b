// Package logs exposes info, warning and error loggers.
package logs

import (
	"io"
	"log"
	"strings"
)

var (
	// Info is a logger at the 'info' logging level.
	Info *log.Logger
	// Warn is a logger at the 'warning' logging level.
	Warn *log.Logger
	// Err is a logger at the 'error' logging level.
	Err *log.Logger
)

func init() {
	// Loggers must be usable before Init is called, e.g. from package tests.
	Init(io.Discard, "")
}

func parseFlags(logFlags string) int {
	flags := 0
	for _, v := range strings.Split(logFlags, ",") {
		switch strings.TrimSpace(v) {
		case "date":
			flags |= log.Ldate
		case "time":
			flags |= log.Ltime
		case "microseconds":
			flags |= log.Lmicroseconds
		case "longFile":
			flags |= log.Llongfile
		case "shortFile":
			flags |= log.Lshortfile
		case "UTC":
			flags |= log.LUTC
		case "msgPrefix":
			flags |= log.Lmsgprefix
		case "stdFlags":
			flags |= log.LstdFlags
		}
	}
	return flags
}

// Init initializes info, warning and error loggers given the flags and the output.
func Init(output io.Writer, logFlags string) {
	flags := parseFlags(logFlags)
	Info = log.New(output, "I", flags)
	Warn = log.New(output, "W", flags)
	Err = log.New(output, "E", flags)
}
