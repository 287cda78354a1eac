package proc

import (
	"rvos/errs"
	"rvos/kfile"
)

// FDTable is a process's open-file-descriptor table: a slice indexed by
// fd number with holes left by Close reused by the next Install, the
// same low-fd-reuse policy biscuit's fd/fd.go table keeps.
type FDTable struct {
	files []kfile.File // nil entry marks a free slot
}

const maxOpenFiles = 256

// Install finds the lowest free fd, stores f there, and returns the fd.
func (t *FDTable) Install(f kfile.File) (int, errs.Err_t) {
	for i, existing := range t.files {
		if existing == nil {
			t.files[i] = f
			return i, errs.OK
		}
	}
	if len(t.files) >= maxOpenFiles {
		return 0, errs.EMFILE
	}
	t.files = append(t.files, f)
	return len(t.files) - 1, errs.OK
}

// Get returns the file at fd, or EBADF if fd is out of range or closed.
func (t *FDTable) Get(fd int) (kfile.File, errs.Err_t) {
	if fd < 0 || fd >= len(t.files) || t.files[fd] == nil {
		return nil, errs.EBADF
	}
	return t.files[fd], errs.OK
}

// Close releases fd's slot after closing the underlying file.
func (t *FDTable) Close(fd int) errs.Err_t {
	f, err := t.Get(fd)
	if err != errs.OK {
		return err
	}
	t.files[fd] = nil
	return f.Close()
}

// clone returns a shallow copy of the table: the same File instances,
// a distinct slice, matching fork's "fd table cloned, files shared"
// semantics.
func (t *FDTable) clone() FDTable {
	return FDTable{files: append([]kfile.File(nil), t.files...)}
}
