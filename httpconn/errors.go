package httpconn

import "errors"

// Response-builder contract errors.
var (
	ErrStartNotCalled = errors.New("httpconn: StartResponse was not called")
	ErrAlreadyEnded   = errors.New("httpconn: response already ended")
	ErrHeaderAfterSend = errors.New("httpconn: AddHeader called after SendHeaders")
)

// ErrHeadersTooLarge mirrors httpparse.ErrHeadersTooLarge at the request
// accumulation layer, for the case where the arena sub-span itself (not
// just the parser's own counter) is exhausted first.
var ErrHeadersTooLarge = errors.New("httpconn: cumulative header bytes exceed the connection's header arena")
