package watcher

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveBatch(t *testing.T, d *Debouncer) []Event {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted within deadline")
		return nil
	}
}

func TestDebouncer_CoalescingRules(t *testing.T) {
	tests := []struct {
		name string
		ops  []Op
		want Op
	}{
		{"created then modified keeps created", []Op{OpCreated, OpModified}, OpCreated},
		{"modified then modified stays modified", []Op{OpModified, OpModified}, OpModified},
		{"deleted overrides created", []Op{OpCreated, OpDeleted}, OpDeleted},
		{"deleted overrides modified", []Op{OpModified, OpDeleted}, OpDeleted},
		{"deleted then created becomes modified", []Op{OpDeleted, OpCreated}, OpModified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20*time.Millisecond, nil)
			defer d.Stop()
			for _, op := range tt.ops {
				d.Add(Event{Path: "/r/a.go", Op: op, At: time.Now()})
			}
			batch := receiveBatch(t, d)
			require.Len(t, batch, 1)
			assert.Equal(t, tt.want, batch[0].Op)
		})
	}
}

func TestDebouncer_DistinctPathsShareOneBatch(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, nil)
	defer d.Stop()

	d.Add(Event{Path: "/r/a.go", Op: OpCreated})
	d.Add(Event{Path: "/r/b.go", Op: OpModified})

	batch := receiveBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncer_TimerResetsOnActivity(t *testing.T) {
	d := NewDebouncer(50*time.Millisecond, nil)
	defer d.Stop()

	d.Add(Event{Path: "/r/a.go", Op: OpModified})
	time.Sleep(25 * time.Millisecond)
	d.Add(Event{Path: "/r/a.go", Op: OpModified})

	// The first window would have expired here; the reset one has not.
	select {
	case <-d.Output():
		t.Fatal("batch emitted before quiet window elapsed")
	case <-time.After(15 * time.Millisecond):
	}

	batch := receiveBatch(t, d)
	assert.Len(t, batch, 1)
}

func TestDebouncer_DrainReturnsPendingWithoutEmitting(t *testing.T) {
	d := NewDebouncer(time.Hour, nil)
	d.Add(Event{Path: "/r/a.go", Op: OpDeleted})
	d.Stop()

	drained := d.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, OpDeleted, drained[0].Op)
	assert.Empty(t, d.Drain())
}

func TestDebouncer_AddAfterStopIsNoOp(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, nil)
	d.Stop()
	d.Add(Event{Path: "/r/a.go", Op: OpCreated})
	assert.Empty(t, d.Drain())

	// Output is closed, not blocked.
	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestDebouncer_FullOutputHoldsBatchInsteadOfDropping(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, nil)
	defer d.Stop()

	// Jam the output channel so a flush cannot deliver.
	for i := 0; i < cap(d.output); i++ {
		d.output <- []Event{}
	}

	d.Add(Event{Path: "/r/gone.go", Op: OpDeleted})

	// Several windows pass with the channel full; the deletion must
	// stay pending rather than vanish.
	time.Sleep(80 * time.Millisecond)
	d.mu.Lock()
	_, held := d.pending["/r/gone.go"]
	d.mu.Unlock()
	require.True(t, held)

	// Once the consumer catches up, the retry delivers it.
	for i := 0; i < cap(d.output); i++ {
		<-d.output
	}
	batch := receiveBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpDeleted, batch[0].Op)
}

func TestDebouncer_DeletionsSurviveSlowConsumer(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, nil)

	const total = 40
	var mu sync.Mutex
	got := make(map[string]bool)
	go func() {
		for batch := range d.Output() {
			time.Sleep(30 * time.Millisecond)
			mu.Lock()
			for _, ev := range batch {
				got[ev.Path] = true
			}
			mu.Unlock()
		}
	}()

	for i := 0; i < total; i++ {
		d.Add(Event{Path: fmt.Sprintf("/r/f%02d.go", i), Op: OpDeleted})
		time.Sleep(7 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == total
	}, 5*time.Second, 10*time.Millisecond)
	d.Stop()
}

func TestDebouncer_SustainedChurnStillFlushes(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, nil)
	defer d.Stop()

	// A hot path updating faster than the quiet window would otherwise
	// defer the flush forever; the max-wait cap forces one out.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				d.Add(Event{Path: "/r/hot.go", Op: OpModified})
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()
	d.Add(Event{Path: "/r/cold.go", Op: OpCreated})

	batch := receiveBatch(t, d)
	close(stop)
	wg.Wait()

	paths := make(map[string]bool, len(batch))
	for _, ev := range batch {
		paths[ev.Path] = true
	}
	assert.True(t, paths["/r/cold.go"])
}
