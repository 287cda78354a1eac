package kscall

import "rvos/errs"

// ok packs a successful, non-negative syscall result for return through
// dispatch's int64 convention.
func ok(v uint64) int64 { return int64(v) }

// errVal packs a failed syscall result as the negative errno a0 the
// dispatch convention uses for errors.
func errVal(e errs.Err_t) int64 { return int64(e.Int()) }
