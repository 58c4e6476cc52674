package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrAlreadyResolved = errors.New("trade already resolved")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoForecasts     = errors.New("no forecasts")
	ErrLockHeld        = errors.New("lock already held")
)
