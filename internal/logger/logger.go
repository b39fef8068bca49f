package logger

import (
	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

// Init initializes the structured logger.
func Init(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	// JSON in production, text for development via SetTextFormatter.
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter switches to human-readable log output (development).
func SetTextFormatter() {
	if Log != nil {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}
