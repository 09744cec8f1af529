// SPDX-License-Identifier: MPL-2.0

package echo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
)

// ChunkSize is the maximum number of bytes read per iteration.
const ChunkSize = 1024

// Outcome values describe how a connection ended.
const (
	OutcomeEOF        Outcome = "eof"
	OutcomeError      Outcome = "error"
	OutcomeTerminated Outcome = "terminated"
)

type (
	// Outcome is the terminal reason a Handler stopped serving.
	Outcome string

	// Result summarises one served connection.
	Result struct {
		Outcome  Outcome
		BytesIn  int64
		BytesOut int64
		// Err is a *ConnectionIOError when Outcome is OutcomeError.
		Err error
	}

	// Handler echoes bytes on a single connection.
	Handler struct {
		logger *slog.Logger
	}

	// onceCloser closes the wrapped connection exactly once, no matter how
	// many paths try.
	onceCloser struct {
		conn net.Conn
		once sync.Once
		err  error
	}
)

// NewHandler creates a Handler. A nil logger discards output.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger}
}

// Serve echoes conn until the peer closes it, an I/O error occurs, or ctx is
// cancelled. The connection is always closed before Serve returns.
//
// Cancelling ctx closes the connection, which unblocks a pending read or
// write; a write in flight may be truncated.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) Result {
	closer := &onceCloser{conn: conn}
	defer closer.Close()

	stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
	defer stop()

	remote := remoteAddr(conn)
	log := h.logger.With("remote", remote)

	var res Result
	buf := make([]byte, ChunkSize)

	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			res.BytesIn += int64(n)
			written, werr := writeFull(conn, buf[:n])
			res.BytesOut += int64(written)
			if werr != nil {
				return h.finish(ctx, log, res, &ConnectionIOError{Op: "write", Remote: remote, Err: werr})
			}
		}
		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			res.Outcome = OutcomeEOF
			log.Debug("peer closed connection", "bytes", res.BytesIn)
			return res
		}
		return h.finish(ctx, log, res, &ConnectionIOError{Op: "read", Remote: remote, Err: rerr})
	}
}

// finish classifies an I/O failure: when ctx was cancelled the error is the
// consequence of termination, not a fault of the connection.
func (h *Handler) finish(ctx context.Context, log *slog.Logger, res Result, ioErr *ConnectionIOError) Result {
	if ctx.Err() != nil {
		res.Outcome = OutcomeTerminated
		log.Debug("connection terminated", "bytes", res.BytesIn)
		return res
	}
	res.Outcome = OutcomeError
	res.Err = ioErr
	log.Warn("connection I/O failed", "op", ioErr.Op, "error", ioErr.Err)
	return res
}

// writeFull writes all of p, looping over short writes.
func writeFull(w io.Writer, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

func (c *onceCloser) Close() error {
	c.once.Do(func() { c.err = c.conn.Close() })
	return c.err
}
