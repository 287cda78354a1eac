package kfile

import (
	"rvos/config"
	"rvos/errs"
	"rvos/ksync"
)

// ringBuffer is a fixed-capacity byte ring, grounded directly on
// biscuit's circbuf.Circbuf_t: monotonically increasing head/tail
// counters modulo bufsz, rather than a wrapped index pair, so Full/Empty
// reduce to simple subtraction exactly as circbuf's do.
type ringBuffer struct {
	buf        []byte
	head, tail int
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{buf: make([]byte, size)}
}

func (r *ringBuffer) full() bool  { return r.head-r.tail == len(r.buf) }
func (r *ringBuffer) empty() bool { return r.head == r.tail }
func (r *ringBuffer) used() int   { return r.head - r.tail }
func (r *ringBuffer) left() int   { return len(r.buf) - r.used() }

func (r *ringBuffer) write(p []byte) int {
	n := 0
	for n < len(p) && !r.full() {
		r.buf[r.head%len(r.buf)] = p[n]
		r.head++
		n++
	}
	return n
}

func (r *ringBuffer) read(p []byte) int {
	n := 0
	for n < len(p) && !r.empty() {
		p[n] = r.buf[r.tail%len(r.buf)]
		r.tail++
		n++
	}
	return n
}

// pipeShared is the buffer and state shared by a pipe's two ends.
type pipeShared struct {
	mu     ksync.Mutex
	notEmpty ksync.Condvar
	notFull  ksync.Condvar
	ring       *ringBuffer
	readClosed bool
	writeClosed bool
}

// NewPipe creates a connected pair of pipe ends sized per the kernel's
// fixed-capacity pipe (config.BlockSize doubles as a reasonable default
// pipe capacity; callers needing a different size can't resize a pipe
// once created, matching a real kernel's fixed kernel-buffer pipe).
func NewPipe() (*PipeReader, *PipeWriter) {
	sh := &pipeShared{ring: newRingBuffer(config.BlockSize)}
	return &PipeReader{sh: sh}, &PipeWriter{sh: sh}
}

// PipeReader is the read end of a pipe.
type PipeReader struct{ sh *pipeShared }

func (p *PipeReader) Read(buf []byte) (int, errs.Err_t) {
	sh := p.sh
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for sh.ring.empty() && !sh.writeClosed {
		sh.notEmpty.Wait(&sh.mu)
	}
	n := sh.ring.read(buf)
	if n > 0 {
		sh.notFull.Signal()
	}
	return n, errs.OK
}

// TryRead reads whatever is immediately available without blocking,
// returning errs.EAGAIN if the ring is empty and the write end is still
// open. Callers driven by a cooperative scheduler (package kscall) must
// use this instead of Read, whose Condvar.Wait would block the task's
// own goroutine without yielding the hart to any other task.
func (p *PipeReader) TryRead(buf []byte) (int, errs.Err_t) {
	sh := p.sh
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.ring.empty() {
		if sh.writeClosed {
			return 0, errs.OK // EOF
		}
		return 0, errs.EAGAIN
	}
	n := sh.ring.read(buf)
	if n > 0 {
		sh.notFull.Signal()
	}
	return n, errs.OK
}

func (p *PipeReader) Write(buf []byte) (int, errs.Err_t) { return 0, errs.EPERM }

func (p *PipeReader) Close() errs.Err_t {
	sh := p.sh
	sh.mu.Lock()
	sh.readClosed = true
	sh.mu.Unlock()
	sh.notFull.Broadcast()
	return errs.OK
}

// PipeWriter is the write end of a pipe.
type PipeWriter struct{ sh *pipeShared }

func (p *PipeWriter) Read(buf []byte) (int, errs.Err_t) { return 0, errs.EPERM }

func (p *PipeWriter) Write(buf []byte) (int, errs.Err_t) {
	sh := p.sh
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.readClosed {
		return 0, errs.EPIPE
	}
	n := 0
	for n < len(buf) {
		for sh.ring.full() && !sh.readClosed {
			sh.notFull.Wait(&sh.mu)
		}
		if sh.readClosed {
			return n, errs.EPIPE
		}
		wrote := sh.ring.write(buf[n:])
		n += wrote
		if wrote > 0 {
			sh.notEmpty.Signal()
		}
	}
	return n, errs.OK
}

// TryWrite writes as many bytes as currently fit without blocking,
// returning (0, errs.EAGAIN) if the ring is full and the read end is
// still open (see TryRead for why kscall needs this instead of Write).
func (p *PipeWriter) TryWrite(buf []byte) (int, errs.Err_t) {
	sh := p.sh
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.readClosed {
		return 0, errs.EPIPE
	}
	if sh.ring.full() {
		return 0, errs.EAGAIN
	}
	n := sh.ring.write(buf)
	if n > 0 {
		sh.notEmpty.Signal()
	}
	return n, errs.OK
}

func (p *PipeWriter) Close() errs.Err_t {
	sh := p.sh
	sh.mu.Lock()
	sh.writeClosed = true
	sh.mu.Unlock()
	sh.notEmpty.Broadcast()
	return errs.OK
}
