// 包 upload：多文件并发上传的进度跟踪与派发
package upload

import (
	"bytes"
	"fmt"
	"strconv"

	"mapvis/internal/metrics"
	"mapvis/internal/transport"
)

// TaskID：批次号 + 文件下标；批次号用于丢弃上一批次的迟到事件
type TaskID struct {
	Batch int
	Index int
}

// Event：上传任务事件（Progress / Sent / Done）
type Event interface{ uploadEvent() }

// Progress：请求体发送进度；Computable 为 false 时忽略
type Progress struct {
	Loaded     int64
	Total      int64
	Computable bool
}

// Sent：请求体发送完成，进度置 1
type Sent struct{}

// Done：响应到达或网络失败；计入批次完成数
type Done struct {
	Status int
	Body   []byte
	Err    error
}

func (Progress) uploadEvent() {}
func (Sent) uploadEvent()     {}
func (Done) uploadEvent()     {}

// IndicatorState：进度条显示状态
type IndicatorState uint8

const (
	Hidden IndicatorState = iota
	Active
	Fading
)

func (s IndicatorState) String() string {
	switch s {
	case Active:
		return "active"
	case Fading:
		return "fading"
	}
	return "hidden"
}

// Task：单个文件的上传状态
type Task struct {
	Name     string
	Fraction float64
	Reported bool
	Done     bool
}

// 文档注释：OnEvent 的处理结果
// 背景：跟踪器只维护状态，不直接触发加载或告警；由会话根据结果决定后续动作。
type Result struct {
	// Payload 非空：2xx 且响应体非空，作为新数据集加载
	Payload []byte
	// Err 非空：需要告警（网络失败或非 2xx）
	Err error
	// BatchComplete：本事件使批次完成（只出现一次）
	BatchComplete bool
}

// 文档注释：上传跟踪器
// 背景：进度只增不减；聚合进度为“已回报任务”的算术平均；批次完成后进度条延迟淡出，宽度保留到下一批次才归零。
// 约束：非并发安全，仅由会话事件循环调用。
type Tracker struct {
	batch int
	tasks []Task
	done  int
	state IndicatorState
	width float64
}

func NewTracker() *Tracker { return &Tracker{} }

// Begin：开始新批次并返回批次号；旧批次任务整体丢弃
func (t *Tracker) Begin(names []string) int {
	t.batch++
	t.tasks = make([]Task, len(names))
	for i, n := range names {
		t.tasks[i] = Task{Name: n}
	}
	t.done = 0
	t.width = 0
	if len(names) > 0 {
		t.state = Active
	}
	return t.batch
}

// Batch 当前批次号
func (t *Tracker) Batch() int { return t.batch }

// Tasks 当前批次任务快照
func (t *Tracker) Tasks() []Task {
	out := make([]Task, len(t.tasks))
	copy(out, t.tasks)
	return out
}

// 文档注释：处理单个任务事件
// 约束：批次号不匹配或下标越界的事件直接忽略；同一任务的重复 Done 只计一次。
func (t *Tracker) OnEvent(id TaskID, ev Event) Result {
	var r Result
	if id.Batch != t.batch || id.Index < 0 || id.Index >= len(t.tasks) {
		return r
	}
	task := &t.tasks[id.Index]
	switch e := ev.(type) {
	case Progress:
		if !e.Computable || e.Total <= 0 {
			return r
		}
		task.report(float64(e.Loaded) / float64(e.Total))
	case Sent:
		task.report(1)
	case Done:
		if task.Done {
			return r
		}
		task.Done = true
		t.done++
		switch {
		case e.Err != nil:
			metrics.UploadsTotal.WithLabelValues("error").Inc()
			r.Err = fmt.Errorf("upload %s: %w", task.Name, e.Err)
		case e.Status < 200 || e.Status > 299:
			metrics.UploadsTotal.WithLabelValues("http_" + strconv.Itoa(e.Status)).Inc()
			r.Err = fmt.Errorf("upload %s: %w", task.Name, &transport.StatusError{Code: e.Status, Body: e.Body})
		default:
			metrics.UploadsTotal.WithLabelValues("ok").Inc()
			if len(bytes.TrimSpace(e.Body)) > 0 {
				r.Payload = e.Body
			}
		}
		r.BatchComplete = t.IsBatchComplete()
	}
	t.width = t.AggregateFraction() * 100
	return r
}

func (task *Task) report(f float64) {
	if f > 1 {
		f = 1
	} else if f < 0 {
		f = 0
	}
	if !task.Reported || f > task.Fraction {
		task.Fraction = f
	}
	task.Reported = true
}

// AggregateFraction：已回报任务的进度平均值；无回报时为 0
func (t *Tracker) AggregateFraction() float64 {
	var sum float64
	n := 0
	for _, task := range t.tasks {
		if task.Reported {
			sum += task.Fraction
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// IsBatchComplete：完成数等于派发数
func (t *Tracker) IsBatchComplete() bool {
	return t.done == len(t.tasks)
}

// Fade：淡出定时器到期；仅当批次号匹配且批次已完成时生效，并销毁本批次任务
func (t *Tracker) Fade(batch int) bool {
	if batch != t.batch || len(t.tasks) == 0 || !t.IsBatchComplete() {
		return false
	}
	t.state = Fading
	t.tasks = nil
	t.done = 0
	return true
}

// Indicator：进度条宽度百分比与显示状态
func (t *Tracker) Indicator() (float64, IndicatorState) {
	return t.width, t.state
}
