package iot

import "errors"

var (
	// ErrNotFound is returned by Invoke for an unknown thing or method.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned when a command carries a parameter the
	// method does not declare, or a value the method cannot use.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyRegistered is returned by Register for a duplicate thing name.
	ErrAlreadyRegistered = errors.New("thing already registered")
)
