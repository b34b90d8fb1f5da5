// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-zookeeper/zk"
)

// DefaultLockRoot 所有分布式锁的默认根节点
const DefaultLockRoot = "/distributed_locks"

// Conn 是锁用到的 *zk.Conn 方法子集
type Conn interface {
	Exists(path string) (bool, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	Delete(path string, version int32) error
}

var _ Conn = (*zk.Conn)(nil)

// DistributedLock 定义了一个分布式锁对象
type DistributedLock struct {
	conn     Conn   // ZooKeeper连接
	path     string // 锁的路径，例如 /distributed_locks/order-123
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例，必要时逐级创建持久父节点
func NewDistributedLock(conn Conn, root, resourceID string) (*DistributedLock, error) {
	if root == "" {
		root = DefaultLockRoot
	}
	lockPath := strings.TrimSuffix(root, "/") + "/" + resourceID
	if err := ensurePath(conn, lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

func ensurePath(conn Conn, path string) error {
	current := ""
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		current += "/" + part
		exists, _, err := conn.Exists(current)
		if err != nil {
			return fmt.Errorf("failed to check lock node %s: %w", current, err)
		}
		if exists {
			continue
		}
		_, err = conn.Create(current, []byte(""), 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("failed to create lock node %s: %w", current, err)
		}
	}
	return nil
}

// sequence 取出顺序节点末尾的 10 位序号。
// protected 节点名带有 GUID 前缀，不能直接按字符串排序。
func sequence(node string) string {
	if len(node) < 10 {
		return node
	}
	return node[len(node)-10:]
}

// Lock 尝试获取锁，拿不到则阻塞等待，直到 ctx 结束
func (l *DistributedLock) Lock(ctx context.Context) error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath
	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")

	for {
		// 2. 获取锁路径下的所有子节点，按序号排序
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })

		// 3. 判断自己是否是最小的节点
		myIndex := -1
		for i, child := range children {
			if child == myNodeName {
				myIndex = i
				break
			}
		}
		switch myIndex {
		case -1:
			l.abandon()
			return errors.New("own lock node disappeared, session probably expired")
		case 0:
			return nil
		}
		prevNodeIndex := myIndex - 1

		// 4. 不是最小节点，监听前一个节点
		prevNodePath := l.path + "/" + children[prevNodeIndex]
		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			l.abandon()
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
			// 前一个节点有变化（一般是被删除），重新竞争
		case <-ctx.Done():
			l.abandon()
			return ctx.Err()
		}
	}
}

// abandon 放弃排队，删掉自己的节点
func (l *DistributedLock) abandon() {
	if l.lockNode != "" {
		_ = l.conn.Delete(l.lockNode, -1)
		l.lockNode = ""
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}
