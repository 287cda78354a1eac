package proc

import "rvos/errs"

// anyPID is the wildcard waitpid target matching any child ("-1 = any").
const anyPID = -1

// Wait searches the calling process's children for a zombie matching
// pid (anyPID for "any child"), reaps the first match it finds, and
// returns its pid and exit code. found=false, code=0 and err=ECHILD mean
// no child matches pid at all ("-1" case, mapped to an Err_t
// since this package's call surface is errs-shaped); found=false with
// err=OK means there is a matching child but none has exited yet (the
// "-2"/nonblocking-probe case) — callers implementing the blocking
// wrapper should yield and retry.
func (p *Process) Wait(pid int) (childPID, exitCode int, found bool, err errs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()

	matched := false
	for i, c := range p.children {
		if pid != anyPID && c.pid != pid {
			continue
		}
		matched = true
		if c.IsZombie() {
			code := c.ExitCode()
			cpid := c.pid
			p.children = append(p.children[:i], p.children[i+1:]...)
			p.k.forget(cpid)
			return cpid, code, true, errs.OK
		}
	}
	if !matched {
		return 0, 0, false, errs.ECHILD
	}
	return 0, 0, false, errs.OK
}

// WaitTid reaps tid within the calling process once it has exited,
// freeing its kernel-stack id. found=false/err=ESRCH means no such thread;
// found=false/err=OK means it exists but hasn't exited yet.
func (p *Process) WaitTid(tid int) (exitCode int, found bool, err errs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, th := range p.threads {
		if th.tid != tid {
			continue
		}
		if th.exitCode == nil {
			return 0, false, errs.OK
		}
		code := *th.exitCode
		p.threads = append(p.threads[:i], p.threads[i+1:]...)
		p.k.kstackAlloc.Dealloc(th.kstackID)
		p.tidAlloc.Dealloc(th.tid)
		return code, true, errs.OK
	}
	return 0, false, errs.ESRCH
}
