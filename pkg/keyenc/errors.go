package keyenc

import "errors"

var (
	errShort       = errors.New("keyenc: truncated field encoding")
	errUnknownType = errors.New("keyenc: unknown field encoding type")
)
