package probe

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igaudience/pkg/instagram"
	"igaudience/pkg/logger"
)

// MockChecker reports every username containing "priv" as private
type MockChecker struct {
	delay   time.Duration
	active  int32
	peak    int32
	mu      sync.Mutex
	checked []string
}

func (m *MockChecker) CheckVisibility(ctx context.Context, username string) instagram.Visibility {
	n := atomic.AddInt32(&m.active, 1)
	for {
		peak := atomic.LoadInt32(&m.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&m.peak, peak, n) {
			break
		}
	}
	defer atomic.AddInt32(&m.active, -1)

	m.mu.Lock()
	m.checked = append(m.checked, username)
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	public := !strings.Contains(username, "priv")
	return instagram.Visibility{Username: username, Exists: true, IsPublic: public, IsPrivate: !public}
}

func (m *MockChecker) Checked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.checked)
}

func TestNewClampsConcurrency(t *testing.T) {
	assert.Equal(t, 1, New(&MockChecker{}, 0, nil).Concurrency())
	assert.Equal(t, 2, New(&MockChecker{}, 2, nil).Concurrency())
	assert.Equal(t, 3, New(&MockChecker{}, 50, nil).Concurrency())
}

func TestCheckAllPreservesOrderAndBound(t *testing.T) {
	checker := &MockChecker{delay: 20 * time.Millisecond}
	p := New(checker, 3, logger.NewNopLogger())

	names := []string{"a", "b_priv", "c", "d", "e", "f_priv", "g", "h"}
	results := p.CheckAll(context.Background(), names)

	require.Len(t, results, len(names))
	for i, v := range results {
		assert.Equal(t, names[i], v.Username)
		assert.Equal(t, !strings.Contains(names[i], "priv"), v.IsPublic)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&checker.peak), int32(3))
	assert.Greater(t, atomic.LoadInt32(&checker.peak), int32(1))
}

func TestCheckAllEmpty(t *testing.T) {
	p := New(&MockChecker{}, 3, logger.NewNopLogger())
	assert.Empty(t, p.CheckAll(context.Background(), nil))
}

func TestCheckAllCancelled(t *testing.T) {
	checker := &MockChecker{}
	p := New(checker, 3, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := p.CheckAll(ctx, []string{"a", "b"})
	require.Len(t, results, 2)
	for _, v := range results {
		assert.True(t, v.IsPrivate)
		assert.False(t, v.IsPublic)
		assert.Equal(t, context.Canceled.Error(), v.Error)
	}
	assert.Equal(t, 0, checker.Checked())
}

func TestFirstPublicStopsEarly(t *testing.T) {
	checker := &MockChecker{}
	p := New(checker, 3, logger.NewNopLogger())

	names := []string{"a_priv", "b", "c", "d", "e", "f", "g"}
	got := p.FirstPublic(context.Background(), names, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Username)
	assert.Equal(t, "c", got[1].Username)
	assert.Equal(t, 3, checker.Checked())
}

func TestFirstPublicExhaustsCandidates(t *testing.T) {
	checker := &MockChecker{}
	p := New(checker, 2, logger.NewNopLogger())

	got := p.FirstPublic(context.Background(), []string{"a_priv", "b", "c_priv", "d_priv", "e"}, 5)

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Username)
	assert.Equal(t, "e", got[1].Username)
	assert.Equal(t, 5, checker.Checked())

	assert.Empty(t, p.FirstPublic(context.Background(), []string{"a"}, 0))
}
