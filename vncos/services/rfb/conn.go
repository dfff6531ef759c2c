package rfb

import (
	"errors"
	"io"
	"net"
	"os"
	"runtime"
	"time"
)

const (
	// DefaultReadChunk bounds a single Read on the socket.
	DefaultReadChunk = 512

	// DefaultDrainWindow is how long a drain waits for more bytes.
	DefaultDrainWindow = 5 * time.Millisecond

	maxDrain = 1 << 20
)

// readFull reads exactly len(buf) bytes, at most chunk per Read, yielding
// after every short read. It never succeeds with a partial buffer.
func readFull(r io.Reader, buf []byte, chunk int) error {
	if chunk <= 0 {
		chunk = DefaultReadChunk
	}
	got := 0
	for got < len(buf) {
		want := min(chunk, len(buf)-got)
		n, err := r.Read(buf[got : got+want])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if n < want {
			runtime.Gosched()
		}
	}
	return nil
}

// discard reads and drops n bytes.
func discard(r io.Reader, scratch []byte, n int, chunk int) error {
	for n > 0 {
		k := min(n, len(scratch))
		if err := readFull(r, scratch[:k], chunk); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// drain discards whatever is queued on conn until nothing arrives within
// window, or maxDrain bytes have been dropped. It returns the byte count.
func drain(conn net.Conn, buf []byte, window time.Duration) (int, error) {
	if window <= 0 {
		window = DefaultDrainWindow
	}
	defer conn.SetReadDeadline(time.Time{})

	total := 0
	for total < maxDrain {
		if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
			return total, err
		}
		n, err := conn.Read(buf)
		total += n
		if err != nil {
			if isTimeout(err) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}
