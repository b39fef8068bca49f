package common

import "errors"

// Shared sentinel errors for all repositories
var (
	ErrNotFound          = errors.New("entity not found")
	ErrAlreadyExists     = errors.New("entity already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStaleVersion      = errors.New("stale version")
)
