package ipc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hnrobert/vtlogin/internal/logger"
)

// Package ipc carries logout requests from inside a session back to the
// manager. The protocol is one byte per message over a pair of unix sockets:
// the session writes a logout request to the manager's inbox and waits for an
// ack on its own outbox.

const (
	DefaultInboxPath  = "/run/vtlogin/inbox.sock"
	DefaultOutboxPath = "/run/vtlogin/outbox.sock"
)

type Request byte

const (
	ReqLogout Request = 0
	ReqAck    Request = 1
)

const ackTimeout = time.Second

// Inbox accepts logout requests while a session is active.
type Inbox struct {
	path string
	ln   net.Listener
}

// ListenInbox binds the inbox socket and hands ownership of it to the
// session user so an unprivileged process inside the session can connect.
func ListenInbox(path string, uid, gid int) (*Inbox, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create inbox socket directory: %w", err)
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chown(path, uid, gid); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("chown inbox socket: %w", err)
	}
	return &Inbox{path: path, ln: ln}, nil
}

// Serve accepts connections until handler returns true or the inbox is
// closed. Malformed messages are logged and skipped.
func (in *Inbox) Serve(handler func(Request) (bool, error)) error {
	for {
		conn, err := in.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		logger.Info("Got an incoming connection on the inbox socket")

		var buf [1]byte
		_, rerr := io.ReadFull(conn, buf[:])
		_ = conn.Close()
		if rerr != nil {
			logger.Warn("Failed to read inbox message: %v", rerr)
			continue
		}
		req := Request(buf[0])
		if req != ReqLogout && req != ReqAck {
			logger.Warn("Unexpected inbox byte: %d", buf[0])
			continue
		}

		done, err := handler(req)
		if err != nil {
			logger.Warn("Failed to handle inbox message: %v", err)
			continue
		}
		if done {
			return nil
		}
	}
}

// Close shuts the listener down and removes the socket file.
func (in *Inbox) Close() {
	if in == nil {
		return
	}
	_ = in.ln.Close()
	_ = os.Remove(in.path)
}

// SendLogout is the client side of a logout: bind the outbox, deliver the
// request to the manager's inbox, and wait for the ack.
func SendLogout(inboxPath, outboxPath string) error {
	_ = os.Remove(outboxPath)
	ln, err := net.Listen("unix", outboxPath)
	if err != nil {
		return err
	}
	defer ln.Close()
	defer os.Remove(outboxPath)

	if err := send(inboxPath, ReqLogout); err != nil {
		return err
	}

	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(ackTimeout))

	var buf [1]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		return err
	}
	if Request(buf[0]) != ReqAck {
		return fmt.Errorf("expected logout ack, got byte %d", buf[0])
	}
	return nil
}

// AckOutbox confirms a logout request back to the session side.
func AckOutbox(outboxPath string) error {
	return send(outboxPath, ReqAck)
}

func send(path string, req Request) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write([]byte{byte(req)})
	return err
}
