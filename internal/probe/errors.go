package probe

import "errors"

// ErrClosed is returned when SendPing is called after Close.
var ErrClosed = errors.New("probe: closed")
