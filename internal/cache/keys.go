package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// RateLimitKey names the request counter for one API key in the window that
// starts at windowStart (unix seconds).
func RateLimitKey(keyPrefix string, windowStart int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", keyPrefix, windowStart)
}

// PollThrottleKey marks a job whose transcription status was checked recently.
func PollThrottleKey(jobID uuid.UUID) string {
	return fmt.Sprintf("analysis:poll:%s", jobID)
}

func FeedbackLockKey(simulationID uuid.UUID) string {
	return fmt.Sprintf("feedback:lock:%s", simulationID)
}
