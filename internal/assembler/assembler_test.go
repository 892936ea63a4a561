package assembler

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderchat/orderchat/internal/log"
)

func TestAppendAndCurrentText(t *testing.T) {
	a := New(log.NewNop())

	a.Append("m1", "Order ")
	a.Append("m1", "123 is ")
	a.Append("m1", "shipped.")

	assert.Equal(t, "Order 123 is shipped.", a.CurrentText("m1"))
}

func TestCurrentTextUnknownID(t *testing.T) {
	a := New(log.NewNop())
	assert.Equal(t, "", a.CurrentText("nope"))
}

func TestFinalizeJoinsFragments(t *testing.T) {
	a := New(log.NewNop())

	fragments := []string{"The ", "answer ", "is ", "42."}
	for _, f := range fragments {
		a.Append("m1", f)
	}

	got := a.Finalize("m1", "")
	assert.Equal(t, "The answer is 42.", got)
	assert.Equal(t, "", a.CurrentText("m1"), "buffer must be cleared after finalize")
	assert.False(t, a.Active("m1"))
}

func TestFinalizeAuthoritativeWins(t *testing.T) {
	a := New(log.NewNop())

	a.Append("m1", "partial ")
	a.Append("m1", "text")

	got := a.Finalize("m1", "authoritative answer")
	assert.Equal(t, "authoritative answer", got)
	assert.Equal(t, "", a.CurrentText("m1"))
}

func TestFinalizeWithoutBuffer(t *testing.T) {
	a := New(log.NewNop())

	assert.Equal(t, "X", a.Finalize("never-seen", "X"))
	assert.Equal(t, "", a.Finalize("also-never-seen", ""))
}

func TestClearDiscards(t *testing.T) {
	a := New(log.NewNop())

	a.Append("m1", "half an ans")
	a.Clear("m1")

	assert.Equal(t, "", a.CurrentText("m1"))
	assert.False(t, a.Active("m1"))
}

func TestChunkAfterFinalizeStartsFreshBuffer(t *testing.T) {
	var buf bytes.Buffer
	a := New(log.NewWithWriter(&buf, log.Config{}))

	a.Append("m1", "first turn")
	a.Finalize("m1", "")

	// Late chunk must not resurrect the cleared buffer.
	a.Append("m1", "stale")
	assert.Equal(t, "stale", a.CurrentText("m1"))
	assert.Contains(t, buf.String(), "finalized message")
}

func TestActiveIDs(t *testing.T) {
	a := New(log.NewNop())

	a.Append("m1", "a")
	a.Append("m2", "b")
	a.Finalize("m1", "")

	ids := a.ActiveIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, "m2", ids[0])
}

func TestAppendSeqDropsDuplicatesAndRegressions(t *testing.T) {
	a := New(log.NewNop())

	assert.True(t, a.AppendSeq("m1", "one ", 1))
	assert.True(t, a.AppendSeq("m1", "two ", 2))
	assert.False(t, a.AppendSeq("m1", "two ", 2), "duplicate seq must be dropped")
	assert.False(t, a.AppendSeq("m1", "one ", 1), "regressed seq must be dropped")
	assert.True(t, a.AppendSeq("m1", "three", 4), "gaps are accepted")

	assert.Equal(t, "one two three", a.CurrentText("m1"))
}

func TestIndependentBuffersPerMessage(t *testing.T) {
	a := New(log.NewNop())

	a.Append("m1", "alpha")
	a.Append("m2", "beta")

	assert.Equal(t, "alpha", a.CurrentText("m1"))
	assert.Equal(t, "beta", a.CurrentText("m2"))

	a.Finalize("m1", "")
	assert.Equal(t, "beta", a.CurrentText("m2"), "finalizing one id must not touch another")
}

func TestConcurrentAppendAndRead(t *testing.T) {
	a := New(log.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("m%d", n%2)
			for j := 0; j < 100; j++ {
				a.Append(id, "x")
				_ = a.CurrentText(id)
			}
		}(i)
	}
	wg.Wait()

	total := len(a.CurrentText("m0")) + len(a.CurrentText("m1"))
	assert.Equal(t, 800, total)
}

func TestFinalizedMarkersBounded(t *testing.T) {
	a := New(log.NewNop())

	for i := 0; i < maxFinalizedMarkers+10; i++ {
		id := fmt.Sprintf("m%d", i)
		a.Append(id, "x")
		a.Finalize(id, "")
	}

	assert.Len(t, a.finalized, maxFinalizedMarkers)
	assert.Len(t, a.finalizedOrder, maxFinalizedMarkers)
	_, oldest := a.finalized["m0"]
	assert.False(t, oldest, "oldest marker evicted first")
	_, newest := a.finalized[fmt.Sprintf("m%d", maxFinalizedMarkers+9)]
	assert.True(t, newest)
}

func TestRepeatedFinalizeKeepsOneMarker(t *testing.T) {
	a := New(log.NewNop())

	a.Append("m1", "x")
	a.Finalize("m1", "")
	a.Finalize("m1", "")

	require.Len(t, a.finalizedOrder, 1)
	assert.Contains(t, a.finalized, "m1")
}
