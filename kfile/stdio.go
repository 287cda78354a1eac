package kfile

import "rvos/errs"

// Console is the narrow byte-stream interface Stdin/Stdout need from the
// host; the real kernel would back this with the UART driver, but no
// such driver exists in this retrieval pack (serial/UART code never
// appears anywhere in it), so the boundary is kept abstract here and
// wired to any io.Reader/io.Writer-backed implementation at boot.
type Console interface {
	ReadByte() (byte, bool)
	WriteBytes(p []byte) int
}

// Stdin reads from the console, one request at a time.
type Stdin struct{ console Console }

// NewStdin wraps a Console as a readable File.
func NewStdin(c Console) *Stdin { return &Stdin{console: c} }

func (s *Stdin) Read(buf []byte) (int, errs.Err_t) {
	n := 0
	for n < len(buf) {
		b, ok := s.console.ReadByte()
		if !ok {
			break
		}
		buf[n] = b
		n++
	}
	return n, errs.OK
}

// TryRead reads whatever bytes are immediately available, returning
// errs.EAGAIN rather than (0, OK) when nothing is — letting a
// cooperatively scheduled reader (package kscall) yield and retry
// instead of busy-spinning Read in a tight loop.
func (s *Stdin) TryRead(buf []byte) (int, errs.Err_t) {
	n, err := s.Read(buf)
	if err.Ok() && n == 0 {
		return 0, errs.EAGAIN
	}
	return n, err
}

func (s *Stdin) Write(buf []byte) (int, errs.Err_t) { return 0, errs.EPERM }
func (s *Stdin) Close() errs.Err_t                   { return errs.OK }

// Stdout writes to the console.
type Stdout struct{ console Console }

// NewStdout wraps a Console as a writable File.
func NewStdout(c Console) *Stdout { return &Stdout{console: c} }

func (s *Stdout) Read(buf []byte) (int, errs.Err_t) { return 0, errs.EPERM }
func (s *Stdout) Write(buf []byte) (int, errs.Err_t) {
	return s.console.WriteBytes(buf), errs.OK
}
func (s *Stdout) Close() errs.Err_t { return errs.OK }
