package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"mapvis/internal/logger"
)

// Uploader：由 transport.Client 实现
type Uploader interface {
	Upload(ctx context.Context, name string, body io.Reader, size int64, onProgress func(loaded, total int64), onSent func()) (int, []byte, error)
}

// File：待上传文件；Size<0 表示长度未知
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FromPath：以文件名（不含目录）作为上传名
func FromPath(path string) (File, error) {
	st, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	return File{
		Name: filepath.Base(path),
		Size: st.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Names：批次文件名，供 Tracker.Begin 使用
func Names(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

// 文档注释：并发派发一个批次
// 背景：每个文件一个 goroutine，立即全部发出，不做人为串行；goroutine 只通过 post 回报事件，不触碰任何共享状态。
// 约束：每个任务最终恰好回报一次 Done。
func Start(ctx context.Context, up Uploader, batch int, files []File, post func(TaskID, Event)) {
	for i, f := range files {
		id := TaskID{Batch: batch, Index: i}
		go func() {
			post(id, send(ctx, up, f, func(e Event) { post(id, e) }))
		}()
	}
}

func send(ctx context.Context, up Uploader, f File, post func(Event)) Done {
	rc, err := f.Open()
	if err != nil {
		return Done{Err: err}
	}
	defer rc.Close()
	status, body, err := up.Upload(ctx, f.Name, rc, f.Size,
		func(loaded, total int64) {
			post(Progress{Loaded: loaded, Total: total, Computable: total > 0})
		},
		func() { post(Sent{}) },
	)
	logger.L().Debug("upload_task_done", "filename", f.Name, "status", status, "bytes", len(body), "err", err)
	return Done{Status: status, Body: body, Err: err}
}
