package applications

import (
	"errors"
	"fmt"

	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

var (
	// ErrNotFound indicates the application does not exist or is not visible
	// to the requesting actor.
	ErrNotFound = errors.New("application not found")

	// ErrConcurrentModification indicates a transition lost a race against
	// another request for the same application. Callers may re-read and retry.
	ErrConcurrentModification = errors.New("application was modified concurrently")

	// ErrStoreUnavailable indicates the record store did not answer within the
	// configured timeout. Callers should retry with backoff.
	ErrStoreUnavailable = errors.New("application store unavailable")

	// ErrDuplicateCertificate indicates a certificate already exists for the
	// application. This invariant violation should never occur in correct
	// operation.
	ErrDuplicateCertificate = errors.New("certificate already issued for application")

	// errDuplicateCode is returned by repositories when a generated
	// application code collides; Submit regenerates and retries.
	errDuplicateCode = errors.New("application code already in use")
)

// ValidationError reports malformed input, recoverable by caller correction.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// InvalidTransitionError reports a transition request with no matching edge
// in the transition table, or one the actor's roles are not authorized for.
type InvalidTransitionError struct {
	From  workflows.Status
	To    workflows.Status
	Roles []workflows.Role
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s not permitted for roles %v", e.From, e.To, e.Roles)
}

// MissingReasonError reports a transition into a state that requires reason
// text without any being supplied.
type MissingReasonError struct {
	To workflows.Status
}

func (e *MissingReasonError) Error() string {
	return fmt.Sprintf("transition to %s requires a reason", e.To)
}
