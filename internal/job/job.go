package job

import (
	"fmt"

	"go.uber.org/zap"
)

// runningState holds the endpoints a Job retains while its process is
// still executing: the receive ends of the stdout/stderr line channels
// and the exit-notification channel, and the send end of the kill
// signal. These are the opposite ends of what the Process Manager holds
// -- producer/consumer over four one-directional channels, not a cyclic
// reference.
type runningState struct {
	stdoutRx <-chan line
	stderrRx <-chan line
	exitRx   <-chan exitResult
	killTx   chan<- struct{}
}

// Job aggregates one submission's identity, spec, current state, and
// accumulated output. pid is nil until a spawn succeeds, and remains set
// afterward even in terminal states for diagnostics.
type Job struct {
	ID     uint64
	Pid    *int
	Spec   Spec
	output Output

	running  *runningState
	terminal Status
}

// newRunningJob builds a Job for a submission whose process spawned
// successfully.
func newRunningJob(id uint64, spec Spec, pid int, rs *runningState) *Job {
	return &Job{ID: id, Pid: &pid, Spec: spec, running: rs}
}

// newFailedJob builds a Job for a submission that never started, already
// in its terminal Error state.
func newFailedJob(id uint64, spec Spec, err error) *Job {
	return &Job{ID: id, Spec: spec, terminal: StatusError(err.Error())}
}

// Status returns the external projection of the Job's current state
// without advancing it. Callers that need up-to-date output/status
// should go through Pool.Status/Pool.Output instead, which advance the
// Job first.
func (j *Job) Status() Status {
	if j.running != nil {
		return StatusRunning()
	}
	return j.terminal
}

// Output returns a deep copy of the Job's accumulated output as observed
// so far, without advancing state.
func (j *Job) Output() Output {
	return j.output.Clone()
}

// advance moves a Running Job forward. If kill is true it signals the
// Process Manager to kill the child and blocks until the exit
// notification arrives, draining all remaining output. If kill is false
// it probes non-blockingly: if the process has already exited it
// finishes the same way, otherwise it takes a soft snapshot of whatever
// output has arrived so far and stays Running. A Job already in a
// terminal state is returned unchanged.
func (j *Job) advance(kill bool, log *zap.SugaredLogger) {
	if j.running == nil {
		return
	}
	rs := j.running

	if kill {
		select {
		case rs.killTx <- struct{}{}:
		default:
			log.Debugw("kill signal receiver gone, process already exiting", "job", j.ID)
		}
		result, ok := <-rs.exitRx
		if !ok {
			panic(fmt.Sprintf("job %d: exit channel closed without a value; manager contract violated", j.ID))
		}
		j.finish(result, rs)
		return
	}

	select {
	case result, ok := <-rs.exitRx:
		if !ok {
			panic(fmt.Sprintf("job %d: exit channel closed without a value; manager contract violated", j.ID))
		}
		j.finish(result, rs)
	default:
		cutoff := nowFunc()
		stdoutLines := drainUntil(rs.stdoutRx, cutoff)
		stderrLines := drainUntil(rs.stderrRx, cutoff)
		j.output.append(stdoutLines, stderrLines)
	}
}

// finish folds the remaining buffered output and the manager's exit
// result into the Job's terminal state. It is only reachable from
// advance, which has already confirmed a value arrived on the exit
// channel.
func (j *Job) finish(result exitResult, rs *runningState) {
	stdoutLines := drainAll(rs.stdoutRx)
	stderrLines := drainAll(rs.stderrRx)
	j.output.append(stdoutLines, stderrLines)
	j.terminal = exitStatus(result)
	j.running = nil
}

// exitStatus maps a manager's wait outcome onto the terminal JobStatus
// variants: a numeric exit code means Completed, no code means the
// process was killed by a signal (Terminated), and a wait-time I/O error
// means Error.
func exitStatus(result exitResult) Status {
	if result.state == nil {
		msg := "process exited without a final state"
		if result.waitErr != nil {
			msg = result.waitErr.Error()
		}
		return StatusError(msg)
	}
	if result.state.Exited() {
		return StatusCompleted(int32(result.state.ExitCode()))
	}
	return StatusTerminated()
}
