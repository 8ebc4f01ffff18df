package alerts

import "errors"

var (
	// ErrAlertNotFound is returned when no alert has the given id
	ErrAlertNotFound = errors.New("alert not found")
	// ErrInvalidCondition is returned for conditions other than above and below
	ErrInvalidCondition = errors.New("invalid condition")
	// ErrInvalidAlert is returned for alerts with a missing symbol or a
	// non-positive target price
	ErrInvalidAlert = errors.New("invalid alert")
)
