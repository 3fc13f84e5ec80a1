package job

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Pool is one client's job pool: every command that client has submitted,
// keyed by a monotonically increasing id assigned at submit time. A Pool
// belongs to exactly one principal; the Registry is what maps principals
// to Pools.
//
// jobs is guarded by mu. Advancing a Job (status/output/delete) can block
// -- the delete path waits for the Process Manager to acknowledge a kill
// -- so the pool never holds mu while advancing. Instead it removes the
// Job from the map, advances it outside the lock, and reinserts it unless
// the advance was a delete.
type Pool struct {
	mu     sync.Mutex
	nextID uint64
	jobs   map[uint64]*Job
	log    *zap.SugaredLogger

	// ctx bounds every spawned child's lifetime, not the request that
	// submitted it: an HTTP request's context ends the instant its
	// response is written, long before a long-running job finishes. ctx
	// is instead the server's own shutdown context, so canceling it (on
	// SIGINT/SIGTERM) gives every running job's child process a SIGTERM
	// via exec.Cmd.Cancel rather than orphaning it.
	ctx context.Context
}

// NewPool returns an empty Pool whose jobs are bound to ctx's lifetime.
// log is attached to every Job spawned through it and used for warnings
// encountered while draining streams or signaling a kill.
func NewPool(ctx context.Context, log *zap.SugaredLogger) *Pool {
	return &Pool{jobs: make(map[uint64]*Job), log: log, ctx: ctx}
}

// Submit spawns command with args as a child process and returns the id
// assigned to it. A spawn failure (unknown command, permission denied,
// ...) does not return an error: the failure is recorded as the Job's
// terminal Error status, so callers observe it through Status rather
// than through Submit's return value.
func (p *Pool) Submit(command string, args []string) uint64 {
	id := atomic.AddUint64(&p.nextID, 1)
	spec := NewSpec(command, args)

	m, pid, err := spawn(p.ctx, id, spec, p.log)
	if err != nil {
		p.log.Infow("job spawn failed", "job", id, "command", command, "error", err)
		p.insert(newFailedJob(id, spec, err))
		return id
	}

	stdoutTx, stdoutRx := newLineChannel()
	stderrTx, stderrRx := newLineChannel()
	exitCh := make(chan exitResult, 1)
	killCh := make(chan struct{}, 1)

	go m.run(stdoutTx, stderrTx, exitCh, killCh)

	p.log.Infow("job started", "job", id, "command", command, "args", args, "pid", pid)
	p.insert(newRunningJob(id, spec, pid, &runningState{
		stdoutRx: stdoutRx,
		stderrRx: stderrRx,
		exitRx:   exitCh,
		killTx:   killCh,
	}))
	return id
}

func (p *Pool) insert(j *Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs[j.ID] = j
}

// take removes and returns the Job for id, so its caller can advance it
// outside the pool lock. ok is false if no such job exists.
func (p *Pool) take(id uint64) (j *Job, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok = p.jobs[id]
	if ok {
		delete(p.jobs, id)
	}
	return j, ok
}

// List returns every job's id and Spec known to the pool, including ones
// that have already reached a terminal state. The returned map is a copy.
func (p *Pool) List() map[uint64]Spec {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[uint64]Spec, len(p.jobs))
	for id, j := range p.jobs {
		out[id] = j.Spec
	}
	return out
}

// Status advances id's Job by one non-blocking step and returns its
// resulting Status. ok is false if id is unknown.
func (p *Pool) Status(id uint64) (st Status, ok bool) {
	j, ok := p.take(id)
	if !ok {
		return Status{}, false
	}
	j.advance(false, p.log)
	st = j.Status()
	p.insert(j)
	return st, true
}

// Output advances id's Job by one non-blocking step and returns a copy of
// its accumulated output. ok is false if id is unknown.
func (p *Pool) Output(id uint64) (out Output, ok bool) {
	j, ok := p.take(id)
	if !ok {
		return Output{}, false
	}
	j.advance(false, p.log)
	out = j.Output()
	p.insert(j)
	return out, true
}

// Delete kills id's process if still running, waits for the Process
// Manager to confirm, and removes the Job from the pool permanently --
// unlike Status/Output it does not reinsert. errMsg is non-empty iff the
// Job's final status is Error, in which case the caller surfaces it as a
// failed deletion rather than a successful one. ok is false if id is
// unknown.
func (p *Pool) Delete(id uint64) (errMsg string, ok bool) {
	j, ok := p.take(id)
	if !ok {
		return "", false
	}
	j.advance(true, p.log)
	if msg, isErr := j.Status().Err(); isErr {
		return msg, true
	}
	return "", true
}
