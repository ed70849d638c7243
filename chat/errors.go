package chat

import "errors"

var (
	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("chat manager closed")

	// ErrEmptyMessage is returned by SendMessage when the text is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrBusy is returned by SendMessage under SendPolicyReject while
	// another send is outstanding.
	ErrBusy = errors.New("a message is already being sent")
)
