package session

import (
	"mapvis/internal/resolver"
	"mapvis/internal/upload"
)

// Event：投递到会话事件循环的消息
type Event interface{ sessionEvent() }

// 键名
const KeyEscape = "Escape"

type uploadEvent struct {
	id upload.TaskID
	ev upload.Event
}

type regionEvent struct {
	id resolver.TaskID
	ev resolver.Arrived
}

// ResizeEvent：视口尺寸变化
type ResizeEvent struct{ Width, Height int }

// ActivateEvent：指针激活场景节点（点击区域形状或统计标签）
type ActivateEvent struct{ NodeID string }

// KeyEvent：键盘按键，目前只处理 Escape
type KeyEvent struct{ Key string }

// LoadEvent：加载文档载荷；Push 为 true 时推入导航历史
type LoadEvent struct {
	Payload []byte
	Push    bool
}

// OpenEvent：按数据集 id 获取并加载文档
type OpenEvent struct {
	ID   string
	Push bool
}

// UploadEvent：开始一个上传批次
type UploadEvent struct{ Files []upload.File }

type fadeEvent struct{ batch int }

type openResult struct {
	id      string
	seq     uint64
	payload []byte
	err     error
}

type funcEvent struct{ fn func() }

func (uploadEvent) sessionEvent()   {}
func (regionEvent) sessionEvent()   {}
func (ResizeEvent) sessionEvent()   {}
func (ActivateEvent) sessionEvent() {}
func (KeyEvent) sessionEvent()      {}
func (LoadEvent) sessionEvent()     {}
func (OpenEvent) sessionEvent()     {}
func (UploadEvent) sessionEvent()   {}
func (fadeEvent) sessionEvent()     {}
func (openResult) sessionEvent()    {}
func (funcEvent) sessionEvent()     {}
