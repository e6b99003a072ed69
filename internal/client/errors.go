package client

import "errors"

var (
	// ErrNoModel reports that no model is selected or the selection is out
	// of range.
	ErrNoModel = errors.New("no model selected")
	// ErrInputMismatch reports that the supplied input count does not match
	// the selected model's declared input count. No I/O has happened.
	ErrInputMismatch = errors.New("input count does not match selected model")
	// ErrInference reports that the server received the request but could
	// not process it. The connection remains usable.
	ErrInference = errors.New("server failed to process request")
)
