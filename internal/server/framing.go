package server

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	kerr "github.com/harunnryd/kioku/internal/errors"
)

// The wire supports two framings and auto-detects from the first byte:
// newline-delimited JSON (each request one line) and LSP-style
// Content-Length headers. Whichever the client opens with is used for
// the whole connection, responses included.
type framing interface {
	read() ([]byte, error)
	write(body []byte) error
	// recoverable reports whether the connection can survive a bad
	// frame. Both framings keep serving after one; header framing
	// realigns on the next blank-line boundary.
	recoverable() bool
}

func detectFraming(r *bufio.Reader, w io.Writer) (framing, error) {
	first, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	if first[0] == '{' {
		return &jsonlFraming{r: r, w: w}, nil
	}
	return &headerFraming{r: r, w: w}, nil
}

type jsonlFraming struct {
	r *bufio.Reader
	w io.Writer
}

func (f *jsonlFraming) read() ([]byte, error) {
	line, err := f.r.ReadBytes('\n')
	if len(line) > 0 && err == io.EOF {
		return line, nil // final unterminated line still counts
	}
	return line, err
}

func (f *jsonlFraming) write(body []byte) error {
	_, err := f.w.Write(append(body, '\n'))
	return err
}

func (f *jsonlFraming) recoverable() bool { return true }

type headerFraming struct {
	r *bufio.Reader
	w io.Writer
}

func (f *headerFraming) read() ([]byte, error) {
	length := -1
	for {
		line, err := f.r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			f.resync()
			return nil, kerr.Protocol(fmt.Sprintf("malformed header line %q", line))
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			length, err = strconv.Atoi(strings.TrimSpace(value))
			if err != nil || length < 0 {
				f.resync()
				return nil, kerr.Protocol(fmt.Sprintf("bad Content-Length %q", strings.TrimSpace(value)))
			}
		}
	}
	if length < 0 {
		return nil, kerr.Protocol("missing Content-Length header")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(f.r, body); err != nil {
		return nil, kerr.Protocol("request body shorter than Content-Length")
	}
	return body, nil
}

func (f *headerFraming) write(body []byte) error {
	if _, err := fmt.Fprintf(f.w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	_, err := f.w.Write(body)
	return err
}

// resync discards the remainder of a malformed frame's headers
// through the terminating blank line, leaving the reader at the next
// frame boundary. Best-effort: a frame whose body was never declared
// may surface as one more protocol error before the stream realigns.
func (f *headerFraming) resync() {
	for {
		line, err := f.r.ReadString('\n')
		if err != nil {
			return
		}
		if strings.TrimRight(line, "\r\n") == "" {
			return
		}
	}
}

func (f *headerFraming) recoverable() bool { return true }
