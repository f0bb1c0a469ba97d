package apperrors

import (
	"errors"
)

var (
	ErrShutdown = errors.New("shutdown error")

	ErrStoreNotConfigured = errors.New("store is not configured: set POSTGRES_URL or POSTGRES_PASSWORD")
	ErrUnknownRole        = errors.New("unknown process role")

	ErrUnknownEnvelope = errors.New("unknown envelope kind")
	ErrSchemaInvalid   = errors.New("payload does not match schema")

	ErrIllegalTransition = errors.New("illegal command status transition")
)
