package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Fields is an alias for structured logging fields.
type Fields = logrus.Fields

// New creates a JSON logger tagged with the service name. Components
// receive the resulting entry at construction instead of reading global
// debug flags at call time.
func New(service string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger.WithField("service", service)
}
