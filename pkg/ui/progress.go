package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// StepPrinter prints pipeline steps as "[n/total] @handle: message"
type StepPrinter struct{}

// Step implements pipeline.Progress
func (StepPrinter) Step(handle string, n, total int, msg string) {
	printf(false, "%s %s %s\n", Magenta(fmt.Sprintf("[%d/%d]", n, total)), Cyan("@"+handle), msg)
}

// BatchTracker keeps count of handles processed in a batch run
type BatchTracker struct {
	mu        sync.Mutex
	Total     int
	Completed int
	Failed    int
	Skipped   int
	clock     clockwork.Clock
	StartTime time.Time
}

// NewBatchTracker creates a tracker for total handles
func NewBatchTracker(total int, clock clockwork.Clock) *BatchTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &BatchTracker{Total: total, clock: clock, StartTime: clock.Now()}
}

// Record counts one finished handle
func (bt *BatchTracker) Record(ok bool) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	if ok {
		bt.Completed++
	} else {
		bt.Failed++
	}
}

// Skip counts one handle skipped because an earlier run completed it
func (bt *BatchTracker) Skip() {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.Skipped++
}

// Done returns the number of handles no longer pending
func (bt *BatchTracker) Done() int {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.Completed + bt.Failed + bt.Skipped
}

// Bar returns a progress bar over all handles
func (bt *BatchTracker) Bar() string {
	done := bt.Done()
	filled := 0
	if bt.Total > 0 {
		filled = done * barWidth / bt.Total
	}
	if filled > barWidth {
		filled = barWidth
	}
	return fmt.Sprintf("[%s%s] %d/%d",
		strings.Repeat(ProgressBar, filled),
		strings.Repeat(ProgressEmpty, barWidth-filled),
		done, bt.Total)
}

// Elapsed returns the time since the batch started
func (bt *BatchTracker) Elapsed() time.Duration {
	return bt.clock.Since(bt.StartTime)
}

// PrintProgress prints the bar
func (bt *BatchTracker) PrintProgress() {
	printf(false, "%s %s\n", Green("[BATCH]"), Yellow(bt.Bar()))
}

// Summary describes the finished batch
func (bt *BatchTracker) Summary() string {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return fmt.Sprintf("%d completed, %d failed, %d skipped in %s",
		bt.Completed, bt.Failed, bt.Skipped, bt.clock.Since(bt.StartTime).Round(time.Second))
}
