/*
Package loop serialises access to the script runtime.

A Loop owns one goroutine that takes jobs off an unbounded FIFO queue and
runs them to completion one at a time. Any goroutine may enqueue; nothing
but the loop goroutine ever runs a job body, so the runtime behind the
Handler is never entered concurrently.

# Jobs

Each Job carries an explicit Kind and a typed payload. KindFunc jobs hold a
closure and are run by the loop itself; every other kind is handed to the
Handler, which switches on the tag:

	fut, err := l.Enqueue(loop.NewJob(loop.KindDispatch, payload))
	if err != nil {
		return err // loop is draining
	}
	result, err := fut.Wait(ctx)

Enqueue never blocks. Abandoning Wait does not cancel the job; it still
runs to completion and its result is discarded.

# Shutdown

Close stops intake and drains every job accepted so far. Enqueue after Close
fails with ErrClosed.
*/
package loop
