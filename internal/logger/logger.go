package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New configure le logger standard de logrus et le retourne. Le format JSON
// est utilisé en production, le format texte ailleurs.
func New(level string, production bool) *logrus.Logger {
	log := logrus.StandardLogger()
	log.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if production {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
