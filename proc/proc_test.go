package proc

import (
	"debug/elf"
	"testing"
	"time"

	"rvos/errs"
	"rvos/kfile"
	"rvos/mem"
)

func newTestKernel() *Kernel {
	alloc := mem.NewFrameAllocator(0, 8192)
	fr, ok := mem.NewFrameTracker(alloc)
	if !ok {
		panic("alloc failed")
	}
	return NewKernel(alloc, fr.PPN)
}

// minimalELF builds the smallest valid little-endian riscv64 ELF with a
// single PT_LOAD segment, enough for vm.FromELF to load without needing
// a real toolchain-built binary on disk.
func minimalELF(t *testing.T) []byte {
	t.Helper()
	const vaddr = 0x1000
	text := []byte{0x13, 0x00, 0x00, 0x00} // addi x0, x0, 0 (nop)

	ehsize, phsize := 64, 56
	phoff := ehsize
	dataOff := phoff + phsize

	buf := make([]byte, dataOff+len(text))
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4], buf[5], buf[6], buf[7] = 2, 1, 1, byte(elf.ELFOSABI_NONE)

	le := func(off int, v uint64, n int) {
		for i := 0; i < n; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}
	le(16, uint64(elf.ET_EXEC), 2)
	le(18, uint64(elf.EM_RISCV), 2)
	le(20, uint64(elf.EV_CURRENT), 4)
	le(24, vaddr, 8)
	le(32, uint64(phoff), 8)
	le(40, 0, 8)
	le(48, 0, 4)
	le(52, uint64(ehsize), 2)
	le(54, uint64(phsize), 2)
	le(56, 1, 2)

	ph := buf[phoff:]
	w := func(off int, v uint64, n int) {
		for i := 0; i < n; i++ {
			ph[off+i] = byte(v >> (8 * i))
		}
	}
	w(0, uint64(elf.PT_LOAD), 4)
	w(4, uint64(elf.PF_R|elf.PF_X), 4)
	w(8, uint64(dataOff), 8)
	w(16, vaddr, 8)
	w(24, vaddr, 8)
	w(32, uint64(len(text)), 8)
	w(40, uint64(len(text)), 8)
	w(48, uint64(0x1000), 8)
	copy(buf[dataOff:], text)
	return buf
}

type discardConsole struct{}

func (discardConsole) ReadByte() (byte, bool) { return 0, false }
func (discardConsole) WriteBytes(p []byte) int { return len(p) }

func stdFiles() (kfile.File, kfile.File, kfile.File) {
	c := discardConsole{}
	return kfile.NewStdin(c), kfile.NewStdout(c), kfile.NewStdout(c)
}

func TestSpawnRunsAndExits(t *testing.T) {
	k := newTestKernel()
	stdin, stdout, stderr := stdFiles()

	done := make(chan struct{})
	p, err := k.Spawn(minimalELF(t), func(th *Thread) int {
		close(done)
		return 7
	}, stdin, stdout, stderr)
	if err != errs.OK {
		t.Fatalf("spawn: %v", err)
	}

	go k.Processor.Run()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("thread body never ran")
	}

	deadline := time.Now().Add(time.Second)
	for !p.IsZombie() {
		if time.Now().After(deadline) {
			t.Fatal("process never became a zombie")
		}
		time.Sleep(time.Millisecond)
	}
	if p.ExitCode() != 7 {
		t.Fatalf("exit code = %d, want 7", p.ExitCode())
	}
}

func TestForkAndWait(t *testing.T) {
	k := newTestKernel()
	stdin, stdout, stderr := stdFiles()
	go k.Processor.Run()

	childDone := make(chan struct{})
	var childPID int
	parent, err := k.Spawn(minimalELF(t), func(th *Thread) int {
		child, ferr := th.Process().Fork(func(ct *Thread) int {
			close(childDone)
			return 42
		})
		if ferr != errs.OK {
			t.Errorf("fork: %v", ferr)
			return 1
		}
		childPID = child.PID()

		for {
			_, code, found, werr := th.Process().Wait(childPID)
			if werr != errs.OK {
				t.Errorf("wait: %v", werr)
				return 1
			}
			if found {
				if code != 42 {
					t.Errorf("reaped exit code = %d, want 42", code)
				}
				break
			}
			th.Yield()
		}
		return 0
	}, stdin, stdout, stderr)
	if err != errs.OK {
		t.Fatalf("spawn: %v", err)
	}

	select {
	case <-childDone:
	case <-time.After(time.Second):
		t.Fatal("child thread never ran")
	}

	deadline := time.Now().Add(time.Second)
	for !parent.IsZombie() {
		if time.Now().After(deadline) {
			t.Fatal("parent never finished waiting/exiting")
		}
		time.Sleep(time.Millisecond)
	}
	if parent.ExitCode() != 0 {
		t.Fatalf("parent exit code = %d, want 0", parent.ExitCode())
	}
}

func TestWaitNoSuchChildReturnsECHILD(t *testing.T) {
	k := newTestKernel()
	stdin, stdout, stderr := stdFiles()
	p, err := k.Spawn(minimalELF(t), func(th *Thread) int { return 0 }, stdin, stdout, stderr)
	if err != errs.OK {
		t.Fatalf("spawn: %v", err)
	}
	_, _, found, werr := p.Wait(999)
	if found || werr != errs.ECHILD {
		t.Fatalf("wait on nonexistent child = (found=%v, err=%v), want (false, ECHILD)", found, werr)
	}
}

func TestSbrkGrowsAndShrinksHeap(t *testing.T) {
	k := newTestKernel()
	stdin, stdout, stderr := stdFiles()
	p, err := k.Spawn(minimalELF(t), func(th *Thread) int { return 0 }, stdin, stdout, stderr)
	if err != errs.OK {
		t.Fatalf("spawn: %v", err)
	}

	old, serr := p.Sbrk(4096)
	if serr != errs.OK {
		t.Fatalf("sbrk grow: %v", serr)
	}
	if old != p.heapBottom {
		t.Fatalf("old brk = %#x, want heap_bottom %#x", old, p.heapBottom)
	}

	if _, serr := p.Sbrk(-8192); serr != errs.EINVAL {
		t.Fatalf("sbrk below heap_bottom should fail, got %v", serr)
	}

	if _, serr := p.Sbrk(-4096); serr != errs.OK {
		t.Fatalf("sbrk shrink: %v", serr)
	}
	if p.programBrk != p.heapBottom {
		t.Fatalf("brk = %#x, want back to heap_bottom %#x", p.programBrk, p.heapBottom)
	}
}

func TestFdTableInstallGetClose(t *testing.T) {
	k := newTestKernel()
	stdin, stdout, stderr := stdFiles()
	p, err := k.Spawn(minimalELF(t), func(th *Thread) int { return 0 }, stdin, stdout, stderr)
	if err != errs.OK {
		t.Fatalf("spawn: %v", err)
	}

	console := discardConsole{}
	fd, ierr := p.Fds().Install(kfile.NewStdout(console))
	if ierr != errs.OK || fd != 3 {
		t.Fatalf("install = (%d, %v), want (3, OK)", fd, ierr)
	}
	if _, gerr := p.Fds().Get(fd); gerr != errs.OK {
		t.Fatalf("get: %v", gerr)
	}
	if cerr := p.Fds().Close(fd); cerr != errs.OK {
		t.Fatalf("close: %v", cerr)
	}
	if _, gerr := p.Fds().Get(fd); gerr != errs.EBADF {
		t.Fatalf("get after close = %v, want EBADF", gerr)
	}
}

func TestCreateThreadGivesSeparateTidAndStack(t *testing.T) {
	k := newTestKernel()
	stdin, stdout, stderr := stdFiles()
	go k.Processor.Run()

	childRan := make(chan int, 1)
	p, err := k.Spawn(minimalELF(t), func(th *Thread) int {
		th.process.CreateThread(th.trapCx.Sepc, 99, func(ct *Thread) int {
			arg := ct.trapCx.X[10]
			childRan <- int(arg)
			return 0
		})
		for {
			if _, found, _ := th.Process().WaitTid(1); found {
				break
			}
			th.Yield()
		}
		return 0
	}, stdin, stdout, stderr)
	if err != errs.OK {
		t.Fatalf("spawn: %v", err)
	}

	select {
	case arg := <-childRan:
		if arg != 99 {
			t.Fatalf("child a0 = %d, want 99", arg)
		}
	case <-time.After(time.Second):
		t.Fatal("created thread never ran")
	}

	deadline := time.Now().Add(time.Second)
	for !p.IsZombie() {
		if time.Now().After(deadline) {
			t.Fatal("process never finished")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCreateMutexSemaphoreCondvar(t *testing.T) {
	k := newTestKernel()
	stdin, stdout, stderr := stdFiles()
	p, err := k.Spawn(minimalELF(t), func(th *Thread) int { return 0 }, stdin, stdout, stderr)
	if err != errs.OK {
		t.Fatalf("spawn: %v", err)
	}

	mid := p.CreateMutex()
	if m := p.Mutex(mid); m == nil {
		t.Fatal("expected mutex to exist")
	}
	sid := p.CreateSemaphore(1)
	if s := p.Semaphore(sid); s == nil || s.Count() != 1 {
		t.Fatal("expected semaphore with count 1")
	}
	cid := p.CreateCondvar()
	if c := p.Condvar(cid); c == nil {
		t.Fatal("expected condvar to exist")
	}
	if p.Mutex(99) != nil {
		t.Fatal("expected nil for out-of-range mutex id")
	}
}
