package events

import "errors"

var ErrClosed = errors.New("events: publisher closed")
