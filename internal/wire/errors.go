package wire

import "errors"

var (
	errTruncatedEscape = errors.New("wire: truncated %-escape")
	errBadEscape       = errors.New("wire: invalid %-escape")
)
