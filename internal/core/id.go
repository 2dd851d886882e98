package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewWorkerID returns "<type>-<unix millis>-<8 hex chars>".
func NewWorkerID(wt WorkerType) string {
	return fmt.Sprintf("%s-%d-%s", wt, time.Now().UnixMilli(), uuid.NewString()[:8])
}
