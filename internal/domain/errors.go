package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidState         = errors.New("invalid transaction state")
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
	ErrInvalidRange         = errors.New("invalid byte range")
)
