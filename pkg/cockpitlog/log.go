// Package cockpitlog provides the single shared logrus configuration used
// by every Cockpit process. Each component gets its own *logrus.Entry via
// WithComponent, mirroring the per-component logger handed out by
// cuemby-warren's pkg/log.WithComponent, adapted from zerolog to logrus.
package cockpitlog

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	if strings.EqualFold(os.Getenv("COCKPIT_LOG_FORMAT"), "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(os.Getenv("COCKPIT_LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	return l
}

// WithComponent returns a logger entry tagged with the given component name.
func WithComponent(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// Base returns the shared *logrus.Logger for callers that need direct access
// (e.g. to attach a hook at boot).
func Base() *logrus.Logger { return base }
