package lifecycle

import (
	"log"

	"github.com/sirupsen/logrus"
)

// newServerErrorLog routes net/http's internal errors through logger.
func newServerErrorLog(logger *logrus.Logger) *log.Logger {
	return log.New(logger.WriterLevel(logrus.WarnLevel), "", 0)
}
