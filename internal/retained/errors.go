package retained

import "errors"

// ErrClosed is returned when Track is called after Close.
var ErrClosed = errors.New("retained: closed")
