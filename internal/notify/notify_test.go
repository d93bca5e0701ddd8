package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autofilter/autofilter/internal/assets"
)

type fakeHost struct {
	mu      sync.Mutex
	live    map[string]bool
	created int
	listErr error
}

func newFakeHost() *fakeHost { return &fakeHost{live: make(map[string]bool)} }

func (h *fakeHost) TabIDs(context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listErr != nil {
		return nil, h.listErr
	}
	var ids []string
	for id := range h.live {
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *fakeHost) CreateBackgroundTab(_ context.Context, url string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created++
	id := fmt.Sprintf("T%d", h.created)
	h.live[id] = true
	return id, nil
}

func (h *fakeHost) TabContext(id string) (context.Context, string, error) {
	return context.Background(), id, nil
}

func TestNotifyCreatesTabOnce(t *testing.T) {
	host := newFakeHost()
	var scripts []string
	c := NewChrome(host)
	c.eval = func(_ context.Context, script string) error {
		scripts = append(scripts, script)
		return nil
	}

	c.Notify(context.Background())
	c.Notify(context.Background())

	assert.Equal(t, 1, host.created)
	assert.Equal(t, "T1", c.TabID())
	require.Len(t, scripts, 2)
	assert.Equal(t, assets.BeepScript, scripts[0])
}

func TestNotifyRecreatesClosedTab(t *testing.T) {
	host := newFakeHost()
	c := NewChrome(host)
	c.eval = func(context.Context, string) error { return nil }

	c.Notify(context.Background())
	host.mu.Lock()
	delete(host.live, "T1")
	host.mu.Unlock()
	c.Notify(context.Background())

	assert.Equal(t, 2, host.created)
	assert.Equal(t, "T2", c.TabID())
}

func TestNotifyRetriesOnceWhenTargetIsGone(t *testing.T) {
	host := newFakeHost()
	c := NewChrome(host)
	calls := 0
	c.eval = func(context.Context, string) error {
		calls++
		if calls == 1 {
			return errors.New("No target with given id found")
		}
		return nil
	}

	require.NoError(t, c.play(context.Background()))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, host.created)
}

func TestNotifyDoesNotRetryOtherErrors(t *testing.T) {
	host := newFakeHost()
	c := NewChrome(host)
	calls := 0
	c.eval = func(context.Context, string) error {
		calls++
		return errors.New("audio context blocked")
	}

	require.Error(t, c.play(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestNotifyListErrorSurfaces(t *testing.T) {
	host := newFakeHost()
	c := NewChrome(host)
	c.eval = func(context.Context, string) error { return nil }
	require.NoError(t, c.play(context.Background()))

	host.listErr = errors.New("browser gone")
	err := c.play(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list tabs")
}

func TestNop(t *testing.T) {
	Nop{}.Notify(context.Background())
}
