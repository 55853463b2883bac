package livequery

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Row 是投影后的一条查询结果，键为实体的JSON字段名
type Row map[string]any

// Subscription 是一个已注册的实时查询。每次相关写入后它重新扫描、
// 过滤、投影，只有结果与上次发布值不同时才发布（深比较，投影总是
// 生成新容器，引用比较没有意义）。
type Subscription struct {
	hub   *Hub
	id    int64
	query Query

	mu       sync.Mutex
	last     []Row
	lastSet  bool
	handlers []func([]Row)
	closed   bool
}

// Current 返回最近一次发布的结果
func (s *Subscription) Current() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// OnChange 注册变更回调。回调在写入方的调用链里同步执行，应当保持轻量。
func (s *Subscription) OnChange(cb func([]Row)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handlers = append(s.handlers, cb)
}

// Unsubscribe 注销订阅，之后不再有回调触发
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.handlers = nil
	s.mu.Unlock()

	s.hub.remove(s.id)
}

// derive 重算查询结果并在值变化时发布
func (s *Subscription) derive(ctx context.Context) error {
	entities, err := s.hub.scan(ctx, s.query.Collection)
	if err != nil {
		return err
	}

	rows := make([]Row, 0, len(entities))
	for _, e := range entities {
		if s.query.Filter != nil && !s.query.Filter(e) {
			continue
		}
		row, err := project(e, s.query.Fields)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		if s.query.Limit > 0 && len(rows) >= s.query.Limit {
			break
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.lastSet && reflect.DeepEqual(s.last, rows) {
		s.mu.Unlock()
		return nil
	}
	s.last = rows
	s.lastSet = true
	handlers := append([](func([]Row))(nil), s.handlers...)
	s.mu.Unlock()

	for _, cb := range handlers {
		cb(rows)
	}
	return nil
}

// project 把实体转成投影行。经由JSON往返保证字段名与线上格式一致；
// fields 为空时返回整条记录。
func project(e Entity, fields []string) (Row, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to project entity %s: %w", e.EntityID(), err)
	}
	var full Row
	if err := json.Unmarshal(data, &full); err != nil {
		return nil, fmt.Errorf("failed to project entity %s: %w", e.EntityID(), err)
	}
	if len(fields) == 0 {
		return full, nil
	}
	out := make(Row, len(fields))
	for _, f := range fields {
		if v, ok := full[f]; ok {
			out[f] = v
		}
	}
	return out, nil
}
