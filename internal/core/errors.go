package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrJobNotFound     = fmt.Errorf("%w: print job not found", ErrInvalidArgument)
	ErrInvalidJobState = fmt.Errorf("%w: print job is not in a valid state for this operation", ErrInvalidArgument)
	ErrManagerStopped  = errors.New("print queue manager is stopped")
)

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
