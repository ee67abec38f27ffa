package service

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoValidLicense = errors.New("no valid license")
)
