package xapm

import (
	json "github.com/goccy/go-json"
)

// Span 事务内的一个操作（外部调用、数据库查询等）。
type Span struct {
	event
	transactionID string
	name          string
	kind          string
	subtype       string
	action        string
	sync          bool
}

// Name span 名称
func (s *Span) Name() string {
	return s.name
}

// Kind span 类型（db、external、cache…）
func (s *Span) Kind() string {
	return s.kind
}

// Subtype span 子类型（mysql、redis、http…）
func (s *Span) Subtype() string {
	return s.subtype
}

// TransactionID 所属根事务 id
func (s *Span) TransactionID() string {
	return s.transactionID
}

// Action 操作名称
func (s *Span) Action() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.action
}

// SetAction 设置操作名称（query、connect…），结束后返回 ErrEventEnded。
func (s *Span) SetAction(action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrEventEnded
	}
	s.action = action
	return nil
}

// SetSync 标记操作是否同步执行，默认 true。
func (s *Span) SetSync(sync bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrEventEnded
	}
	s.sync = sync
	return nil
}

type spanDoc struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transaction_id"`
	TraceID       string         `json:"trace_id"`
	ParentID      string         `json:"parent_id"`
	ChildIDs      []string       `json:"child_ids,omitempty"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Subtype       string         `json:"subtype,omitempty"`
	Action        string         `json:"action,omitempty"`
	Timestamp     int64          `json:"timestamp"`
	Duration      float64        `json:"duration"`
	Sync          bool           `json:"sync"`
	SampleRate    float64        `json:"sample_rate"`
	Context       map[string]any `json:"context,omitempty"`
}

// MarshalJSON intake span 文档：{"span":{...}}
func (s *Span) MarshalJSON() ([]byte, error) {
	var children []string
	for _, c := range s.tracer.registry.Children(s.id) {
		if c.Type == EventSpan {
			children = append(children, c.ID)
		}
	}

	s.mu.Lock()
	doc := spanDoc{
		ID:            s.id,
		TransactionID: s.transactionID,
		TraceID:       s.traceID,
		ParentID:      s.parentID,
		ChildIDs:      children,
		Name:          s.name,
		Type:          s.kind,
		Subtype:       s.subtype,
		Action:        s.action,
		Timestamp:     s.Timestamp(),
		Duration:      s.duration,
		Sync:          s.sync,
		SampleRate:    s.tracer.sampleRate(),
		Context:       s.contextLocked(),
	}
	s.mu.Unlock()

	return json.Marshal(struct {
		Span spanDoc `json:"span"`
	}{doc})
}

var _ Event = (*Span)(nil)
