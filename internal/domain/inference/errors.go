package inference

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable indicates the ML service could not be reached (timeout, refused connection).
	ErrServiceUnavailable = errors.New("ML service unavailable")
	// ErrImageRequired is returned before any call when no image was supplied.
	ErrImageRequired = errors.New("no image provided")
	// ErrInvalidThreshold rejects detection thresholds outside (0,1].
	ErrInvalidThreshold = errors.New("confidence threshold must be within (0, 1]")
)

// ServiceError is a non-success HTTP response from the ML service.
type ServiceError struct {
	Endpoint string
	Status   int
	Message  string
	Details  json.RawMessage
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ML service %s returned status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("ML service %s returned status %d: %s", e.Endpoint, e.Status, e.Message)
}
