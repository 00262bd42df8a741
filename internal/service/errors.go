package service

import "errors"

var (
	ErrNotFound          = errors.New("error not found")
	ErrNoSession         = errors.New("error no session")
	ErrSessionExpired    = errors.New("error session expired")
	ErrOperationInFlight = errors.New("error operation already in flight")
	ErrNoAccounts        = errors.New("error no accounts")
)
