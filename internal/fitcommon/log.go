package fitcommon

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a stderr text logger. verbose enables debug output
// such as per-grain warp failures.
func NewLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
