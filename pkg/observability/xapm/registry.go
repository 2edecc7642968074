package xapm

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/omeyang/xapm/pkg/util/xid"
)

// EventType 事件类型
type EventType string

const (
	EventTransaction EventType = "transaction"
	EventSpan        EventType = "span"
	EventError       EventType = "error"
	EventMetadata    EventType = "metadata"
)

// Node 注册表中的事件记录。
type Node struct {
	ID string
	// ParentID 注册表内的父事件，空表示没有父事件
	ParentID string
	TraceID  string
	Type     EventType

	Name    string
	Kind    string
	Subtype string
	Action  string

	// Timestamp 开始时间（微秒）
	Timestamp int64
	// Duration 耗时（毫秒），结束后有效
	Duration float64

	Started bool
	Ended   bool
	IsRoot  bool

	Children []string
}

func (n *Node) clone() Node {
	c := *n
	c.Children = slices.Clone(n.Children)
	return c
}

// NodeState Update 写入的生命周期状态
type NodeState struct {
	Started  bool
	Ended    bool
	Duration float64
}

// Registry 一个工作单元的事件表：父子关系、唯一根、生命周期状态。
//
// 父事件必须先于子事件注册，因此父链严格变短、不会成环。
// 所有读取方法返回副本。并发安全。
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	root  string
	ids   *xid.Generator
}

// NewRegistry 创建注册表。ids 为 nil 时使用默认生成器。
func NewRegistry(ids *xid.Generator) *Registry {
	if ids == nil {
		ids = xid.NewGenerator()
	}
	return &Registry{nodes: make(map[string]*Node), ids: ids}
}

// Register 注册事件。
//
// node.ID 为空时分配表内唯一且不全为零的 8 字节 id（写回 node.ID）；显式 id 已存在时
// 返回 ErrDuplicateID。parentID 非空时必须已注册，否则返回 ErrParentNotFound。
func (r *Registry) Register(node *Node, parentID string) error {
	if node == nil {
		return fmt.Errorf("%w: nil node", ErrEventNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var parent *Node
	if parentID != "" {
		p, ok := r.nodes[parentID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrParentNotFound, parentID)
		}
		parent = p
	}

	if node.ID == "" {
		id, err := r.ids.GenerateUnique(xid.SpanIDBytes, func(s string) bool {
			_, taken := r.nodes[s]
			return taken || strings.Trim(s, "0") == ""
		})
		if err != nil {
			return fmt.Errorf("xapm: allocate event id: %w", err)
		}
		node.ID = id
	} else if _, taken := r.nodes[node.ID]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateID, node.ID)
	}

	stored := node.clone()
	stored.ParentID = parentID
	stored.IsRoot = false
	stored.Children = nil
	r.nodes[stored.ID] = &stored
	if parent != nil {
		parent.Children = append(parent.Children, stored.ID)
	}
	node.ParentID = parentID
	return nil
}

// ClaimRoot 将 id 设为根。已有根时不生效，返回 false。
func (r *Registry) ClaimRoot(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok || r.root != "" {
		return false
	}
	n.IsRoot = true
	r.root = id
	return true
}

// Root 当前根 id，没有根时为空。
func (r *Registry) Root() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root
}

// ResolveRoot 沿父链向上找到根或最顶层的事件。
func (r *Registry) ResolveRoot(id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	for !n.IsRoot && n.ParentID != "" {
		p, ok := r.nodes[n.ParentID]
		if !ok {
			return "", fmt.Errorf("%w: broken link %s -> %s", ErrParentNotFound, n.ID, n.ParentID)
		}
		n = p
	}
	return n.ID, nil
}

// Update 写入生命周期状态。已结束的事件保持结束。
func (r *Registry) Update(id string, st NodeState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	n.Started = n.Started || st.Started
	if st.Ended && !n.Ended {
		n.Ended = true
		n.Duration = st.Duration
	}
	return nil
}

// Get 返回事件副本
func (r *Registry) Get(id string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Len 已注册的事件数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Children 直接子事件，按注册顺序
func (r *Registry) Children(id string) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(n.Children))
	for _, cid := range n.Children {
		if c, ok := r.nodes[cid]; ok {
			out = append(out, c.clone())
		}
	}
	return out
}

// Ancestors 从最顶层祖先到 id 本身的路径
func (r *Registry) Ancestors(id string) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var path []Node
	for n, ok := r.nodes[id]; ok; n, ok = r.nodes[n.ParentID] {
		path = append(path, n.clone())
		if n.ParentID == "" {
			break
		}
	}
	slices.Reverse(path)
	return path
}

// EventStat 事件的上下文视图：祖先路径（含自身）后接直接子事件。
func (r *Registry) EventStat(id string) []Node {
	return append(r.Ancestors(id), r.Children(id)...)
}

// StartedSpans 后代中已开始、或已结束且耗时为正的 span 数。
func (r *Registry) StartedSpans(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return 0
	}
	count := 0
	stack := slices.Clone(n.Children)
	for len(stack) > 0 {
		cid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c, ok := r.nodes[cid]
		if !ok {
			continue
		}
		if c.Type == EventSpan && (c.Started || (c.Ended && c.Duration > 0)) {
			count++
		}
		stack = append(stack, c.Children...)
	}
	return count
}
