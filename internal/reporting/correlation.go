package reporting

import "github.com/google/uuid"

// GenerateCorrelationID returns a unique ID used to tie related events
// together across the scheduler, lifecycle managers, and reporters.
func GenerateCorrelationID() string {
	return uuid.New().String()
}
