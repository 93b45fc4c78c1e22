// Package logging configures the shared logrus logger from the CLI's
// verbosity count, and hands out per-role *logrus.Entry values for the
// transport package to attach peer/role fields to.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New configures a *logrus.Logger from a verbosity count (as produced by
// repeated -v flags): 0 is Warn, 1 is Info, 2 or more is Debug. Output goes
// to stderr.
func New(verbosity int) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	switch {
	case verbosity >= 2:
		log.SetLevel(logrus.DebugLevel)
	case verbosity == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}

	return log
}

// ForRole returns an Entry pre-populated with the session's role ("send"
// or "recv"), letting every downstream log line carry it without the
// caller repeating WithField.
func ForRole(log *logrus.Logger, role string) *logrus.Entry {
	return log.WithField("role", role)
}
