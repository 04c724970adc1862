package booking

import (
	"errors"

	"github.com/dreamscape/service-voyage/pkg/domain"
)

// Lifecycle errors. Callers wrap them with %w and match with errors.Is.
var (
	ErrNotFound               = domain.NewError(domain.KindNotFound, "booking not found")
	ErrAuthorizationMismatch  = domain.NewError(domain.KindForbidden, "user does not own booking")
	ErrInvalidStateTransition = domain.NewError(domain.KindInvalidState, "invalid booking state transition")
	ErrInconsistentState      = domain.NewError(domain.KindConflict, "inconsistent booking state")
	ErrConcurrencyConflict    = domain.NewError(domain.KindConflict, "booking was modified concurrently")
	ErrCorruptStatus          = domain.NewError(domain.KindInternal, "booking has an unknown status")
	ErrPublishFailure         = errors.New("derived event publish failed")
)
