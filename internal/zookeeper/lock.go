// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// DefaultLockRoot holds one child znode per locked resource.
const DefaultLockRoot = "/ordersaga_locks"

// Conn is the subset of *zk.Conn the lock recipe needs.
type Conn interface {
	Exists(path string) (bool, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	Delete(path string, version int32) error
}

// Connect dials the ensemble and waits until a session is established.
func Connect(ctx context.Context, servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("zookeeper connect %v: %w", servers, err)
	}
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				return conn, nil
			}
		case <-ctx.Done():
			conn.Close()
			return nil, fmt.Errorf("zookeeper connect %v: %w", servers, ctx.Err())
		}
	}
}

// DistributedLock is the ephemeral-sequential lock recipe on one resource.
type DistributedLock struct {
	conn     Conn
	path     string
	lockNode string
}

// NewDistributedLock prepares a lock on root/resourceID, creating the
// persistent parent nodes when missing.
func NewDistributedLock(conn Conn, root, resourceID string) (*DistributedLock, error) {
	if root == "" {
		root = DefaultLockRoot
	}
	lockPath := root + "/" + strings.ReplaceAll(resourceID, "/", "_")
	for _, p := range []string{root, lockPath} {
		if err := ensureNode(conn, p); err != nil {
			return nil, err
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

func ensureNode(conn Conn, path string) error {
	ok, _, err := conn.Exists(path)
	if err != nil {
		return fmt.Errorf("check lock node %s: %w", path, err)
	}
	if ok {
		return nil
	}
	_, err = conn.Create(path, nil, 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("create lock node %s: %w", path, err)
	}
	return nil
}

// Lock blocks until this holder owns the smallest sequence node or ctx ends.
func (l *DistributedLock) Lock(ctx context.Context) error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath
	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")

	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			_ = l.Unlock()
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		// protected nodes carry a _c_<guid>- prefix; order by sequence suffix
		sort.Slice(children, func(i, j int) bool { return seq(children[i]) < seq(children[j]) })

		idx := -1
		for i, child := range children {
			if child == myNodeName {
				idx = i
				break
			}
		}
		switch {
		case idx < 0:
			l.lockNode = ""
			return errors.New("lock node vanished, session probably expired")
		case idx == 0:
			return nil
		}

		exists, _, watch, err := l.conn.ExistsW(l.path + "/" + children[idx-1])
		if err != nil {
			_ = l.Unlock()
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}
		select {
		case <-watch:
		case <-ctx.Done():
			_ = l.Unlock()
			return ctx.Err()
		}
	}
}

func seq(node string) string {
	if i := strings.LastIndex(node, "-"); i >= 0 {
		return node[i+1:]
	}
	return node
}

// Unlock deletes the held node. Unlocking twice is an error.
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	l.lockNode = ""
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	return nil
}
