package injector

import (
	"errors"
	"fmt"
)

var (
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")
	ErrInvalidRequest        = errors.New("invalid injection request")
	ErrInvalidTemplate       = errors.New("invalid template")
)

// UnresolvedPlaceholderError names the first mandatory token left in the instance.
type UnresolvedPlaceholderError struct {
	Token string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnresolvedPlaceholder, e.Token)
}

func (e *UnresolvedPlaceholderError) Unwrap() error {
	return ErrUnresolvedPlaceholder
}

// IsUnresolvedPlaceholder checks if an error is an unresolved placeholder error.
func IsUnresolvedPlaceholder(err error) bool {
	return errors.Is(err, ErrUnresolvedPlaceholder)
}
