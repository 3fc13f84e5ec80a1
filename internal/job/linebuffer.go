package job

import "time"

// nowFunc is the clock advance uses to capture a drain-until cutoff. It
// is a var so tests can substitute a controllable clock if needed.
var nowFunc = time.Now

// line pairs one line of output with the monotonic instant it arrived on
// its stream channel.
type line struct {
	text string
	at   time.Time
}

// drainUntil performs a non-blocking drain of ch: it pulls every line
// currently buffered, stopping as soon as it pulls one whose timestamp is
// strictly after cutoff. That line is included — one line past the
// cutoff is the documented behavior, so a child emitting exactly at the
// boundary still makes progress.
func drainUntil(ch <-chan line, cutoff time.Time) []string {
	var lines []string
	for {
		select {
		case l, ok := <-ch:
			if !ok {
				return lines
			}
			lines = append(lines, l.text)
			if l.at.After(cutoff) {
				return lines
			}
		default:
			return lines
		}
	}
}

// drainAll blocks until ch is closed, returning every line received in
// arrival order. It is used once a job has reached a terminal state and
// all remaining buffered output must be folded into the job's record.
func drainAll(ch <-chan line) []string {
	var lines []string
	for l := range ch {
		lines = append(lines, l.text)
	}
	return lines
}

// newLineChannel returns a producer/consumer pair backed by an unbounded
// internal queue: the Process Manager's readStream goroutine must never
// block on a slow or absent consumer, since a blocked writer would stall
// the other stream and the wait-for-exit select alongside it. A relay
// goroutine owns a growable slice as the queue, selecting between
// accepting a new line from in and, whenever the queue is non-empty,
// offering its head to out. out is buffered, so lines the relay has
// already moved into it can be pulled back-to-back by a non-blocking
// drainUntil without waiting for the relay goroutine to be scheduled
// between lines; lines beyond out's capacity stay in the relay's queue
// until there is room. Closing in (done by readStream's caller once
// the stream reaches EOF) drains the remaining queue through out and then
// closes it, so a blocking drainAll on the returned receive end always
// terminates.
func newLineChannel() (chan<- line, <-chan line) {
	in := make(chan line)
	out := make(chan line, 1024)

	go func() {
		defer close(out)
		var queue []line
		for {
			if len(queue) == 0 {
				l, ok := <-in
				if !ok {
					return
				}
				queue = append(queue, l)
				continue
			}

			select {
			case l, ok := <-in:
				if !ok {
					for _, q := range queue {
						out <- q
					}
					return
				}
				queue = append(queue, l)
			case out <- queue[0]:
				queue = queue[1:]
			}
		}
	}()

	return in, out
}
