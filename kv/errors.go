package kv

import "errors"

// ErrClosed is returned by any Store operation after Close.
var ErrClosed = errors.New("kv: store is closed")
