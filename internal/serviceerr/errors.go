package serviceerr

import "errors"

var ErrNotFound = errors.New("not found")
var ErrStateExpired = errors.New("state expired")
var ErrStateMismatch = errors.New("state mismatch")
var ErrUnknownStorage = errors.New("unknown storage type")
