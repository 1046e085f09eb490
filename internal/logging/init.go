package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Init configures the package-level logrus logger from a LOG_LEVEL string,
// selecting a human-readable text formatter when stdout is a terminal and a
// JSON formatter otherwise (container logs, piped output).
func Init(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	log.SetOutput(os.Stdout)
}
