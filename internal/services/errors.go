package services

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"storefront/internal/repositories"
)

var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInvalidInput       = errors.New("invalid input")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientStock  = errors.New("insufficient stock")
	// ErrDatabase hides persistence failures from callers. The underlying
	// error is logged where it is replaced.
	ErrDatabase = errors.New("database error")
)

// InsufficientStockError lists every cart line that could not be served.
type InsufficientStockError struct {
	Details []repositories.StockCheckResult
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %d item(s)", len(e.Details))
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// isBusinessError reports whether err is one of the errors this package
// raises on purpose and should reach the caller unchanged.
func isBusinessError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrAlreadyExists, ErrInvalidOrder, ErrInvalidInput,
		ErrPermissionDenied, ErrInvalidCredentials, ErrConflict, ErrInsufficientStock,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// translate maps a repository error onto this package's taxonomy. Anything
// unrecognised is logged and replaced by ErrDatabase.
func translate(log zerolog.Logger, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isBusinessError(err):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repositories.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case errors.Is(err, repositories.ErrProductInUse), errors.Is(err, repositories.ErrStockConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		log.Error().Err(err).Str("op", op).Msg("persistence failure")
		return fmt.Errorf("%w: failed to %s", ErrDatabase, op)
	}
}
