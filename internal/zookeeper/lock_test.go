package zookeeper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-process znode tree with deletion watches.
type fakeConn struct {
	mu      sync.Mutex
	nodes   map[string]bool
	seq     int
	watches map[string][]chan zk.Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{nodes: map[string]bool{}, watches: map[string][]chan zk.Event{}}
}

func (f *fakeConn) Exists(path string) (bool, *zk.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[path], &zk.Stat{}, nil
}

func (f *fakeConn) ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan zk.Event, 1)
	f.watches[path] = append(f.watches[path], ch)
	return f.nodes[path], &zk.Stat{}, ch, nil
}

func (f *fakeConn) Create(path string, _ []byte, _ int32, _ []zk.ACL) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nodes[path] {
		return "", zk.ErrNodeExists
	}
	f.nodes[path] = true
	return path, nil
}

func (f *fakeConn) CreateProtectedEphemeralSequential(path string, _ []byte, _ []zk.ACL) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	i := strings.LastIndex(path, "/")
	node := fmt.Sprintf("%s/_c_%d-%s%010d", path[:i], 100-f.seq, path[i+1:], f.seq)
	f.nodes[node] = true
	return node, nil
}

func (f *fakeConn) Children(path string) ([]string, *zk.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for n := range f.nodes {
		if strings.HasPrefix(n, path+"/") && !strings.Contains(strings.TrimPrefix(n, path+"/"), "/") {
			out = append(out, strings.TrimPrefix(n, path+"/"))
		}
	}
	return out, &zk.Stat{}, nil
}

func (f *fakeConn) Delete(path string, _ int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.nodes[path] {
		return zk.ErrNoNode
	}
	delete(f.nodes, path)
	for _, ch := range f.watches[path] {
		ch <- zk.Event{Type: zk.EventNodeDeleted, Path: path}
	}
	delete(f.watches, path)
	return nil
}

func TestDistributedLockCreatesParents(t *testing.T) {
	conn := newFakeConn()
	_, err := NewDistributedLock(conn, "", "order:1:payment")
	require.NoError(t, err)
	assert.True(t, conn.nodes[DefaultLockRoot])
	assert.True(t, conn.nodes[DefaultLockRoot+"/order:1:payment"])
}

func TestDistributedLockSerializesHolders(t *testing.T) {
	conn := newFakeConn()
	ctx := context.Background()

	first, err := NewDistributedLock(conn, "/locks", "r")
	require.NoError(t, err)
	require.NoError(t, first.Lock(ctx))

	second, err := NewDistributedLock(conn, "/locks", "r")
	require.NoError(t, err)
	acquired := make(chan error, 1)
	go func() { acquired <- second.Lock(ctx) }()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Unlock())
	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the released lock")
	}
	require.NoError(t, second.Unlock())
	assert.Error(t, second.Unlock())
}

func TestDistributedLockHonoursContext(t *testing.T) {
	conn := newFakeConn()
	first, err := NewDistributedLock(conn, "/locks", "r")
	require.NoError(t, err)
	require.NoError(t, first.Lock(context.Background()))

	second, err := NewDistributedLock(conn, "/locks", "r")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, second.Lock(ctx), context.DeadlineExceeded)

	children, _, _ := conn.Children("/locks/r")
	assert.Len(t, children, 1, "abandoned waiter must remove its node")
}
