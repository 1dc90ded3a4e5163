package session

import (
	"context"
	"errors"

	"mapvis/internal/upload"
)

// ErrNoDocument：当前导航路径不是 /doc/{id}
var ErrNoDocument = errors.New("no document in navigation path")

// push：截断前进历史后追加；与当前路径相同时不重复追加
func (s *Session) push(path string) {
	if s.pos >= 0 && s.history[s.pos] == path {
		return
	}
	s.history = append(s.history[:s.pos+1], path)
	s.pos = len(s.history) - 1
	s.log.Debug("history_push", "path", path)
}

func (s *Session) path() string {
	if s.pos < 0 {
		return "/"
	}
	return s.history[s.pos]
}

// reload：后退/前进不做原地状态恢复，而是按路径整体重新获取文档
func (s *Session) reload() error {
	id, ok := ParseDocPath(s.path())
	if !ok {
		return ErrNoDocument
	}
	s.open(id, false)
	return nil
}

// Reload：重新获取当前路径对应的文档
func (s *Session) Reload(ctx context.Context) error {
	return s.Do(ctx, s.reload)
}

// Back：历史后退一步并整体重载；已在最早位置时返回 false
func (s *Session) Back(ctx context.Context) (bool, error) {
	return s.step(ctx, -1)
}

// Forward：历史前进一步并整体重载
func (s *Session) Forward(ctx context.Context) (bool, error) {
	return s.step(ctx, 1)
}

func (s *Session) step(ctx context.Context, d int) (bool, error) {
	moved := false
	err := s.Do(ctx, func() error {
		p := s.pos + d
		if p < 0 || p >= len(s.history) {
			return nil
		}
		s.pos = p
		moved = true
		return s.reload()
	})
	return moved, err
}

// State：会话状态快照，供命令行与测试读取
type State struct {
	Path          string
	DatasetID     string
	Name          string
	Records       int
	Resolved      int
	Regions       int
	Generation    uint64
	ActiveRecord  int
	ActiveHeading int
	Title         string
	Subtitle      string
	Progress      float64
	Indicator     upload.IndicatorState
	Transform     string
}

// Snapshot：在事件循环内读取状态
func (s *Session) Snapshot(ctx context.Context) (State, error) {
	var st State
	err := s.Do(ctx, func() error {
		st = s.state()
		return nil
	})
	return st, err
}

func (s *Session) state() State {
	st := State{
		Path:          s.path(),
		Regions:       s.sc.RegionCount(),
		Generation:    s.resolver.Generation(),
		ActiveRecord:  s.sel.Record(),
		ActiveHeading: s.sel.Heading(),
		Title:         s.sc.Title.Text,
		Subtitle:      s.sc.Subtitle.Text,
		Transform:     s.sc.World.Transform,
	}
	st.Progress, st.Indicator = s.tracker.Indicator()
	if s.ds != nil {
		st.DatasetID = s.ds.ID
		st.Name = s.ds.Name
		st.Records = len(s.ds.Records)
		for _, r := range s.ds.Records {
			if r.Region != nil {
				st.Resolved++
			}
		}
	}
	return st
}

// Headings：当前数据集的列标签（按列顺序），无数据集时为空
func (s *Session) Headings(ctx context.Context) ([]string, error) {
	var out []string
	err := s.Do(ctx, func() error {
		if s.ds == nil {
			return nil
		}
		for _, h := range s.ds.Headings {
			out = append(out, h.Label)
		}
		return nil
	})
	return out, err
}
