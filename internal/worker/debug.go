package worker

import (
	"os"
	"strings"

	"rhema/internal/logger"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("RHEMA_WORKER_DEBUG"), "1")

func debugLog(log *logger.Logger, msg string, kv ...interface{}) {
	if workerDebugEnabled && log != nil {
		log.Debug(msg, kv...)
	}
}
