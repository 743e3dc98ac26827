// Package server defines utility helpers that are reused across client and
// hub logic.
package server

import (
	"errors"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

// isExpectedCloseError reports whether err is the normal fallout of a
// connection that one side already closed.
func isExpectedCloseError(err error) bool {
	return err == nil ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
