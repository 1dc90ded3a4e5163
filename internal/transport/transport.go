// 包 transport：客户端 HTTP 请求封装（上传带进度、文档与区域获取、{ok:true} 约定的 POST）
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mapvis/internal/doc"
	"mapvis/internal/logger"
)

// ErrNotOK：POST 响应缺少 "ok": true
var ErrNotOK = errors.New("response not ok")

// 文档注释：非 2xx 响应
// 约束：Body 保留原始响应便于告警展示；不做重试。
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return "http status " + strconv.Itoa(e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, msg)
}

// IsStatus：判断 err 是否为指定状态码
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client：指向单个 mapvis 服务端
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New：hc 为空时使用 30s 超时的默认客户端
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

// 文档注释：上传单个文件
// 背景：请求体包一层计数 reader，每次读取回报已发送字节；读到 EOF 时回报一次 onSent（对应请求体发送完成）。
// 参数：size<0 表示长度不可计算，此时 onProgress 的 total 为 -1。
// 返回：状态码与响应体；仅网络层失败返回 error，非 2xx 由调用方判定。
func (c *Client) Upload(ctx context.Context, name string, body io.Reader, size int64, onProgress func(loaded, total int64), onSent func()) (int, []byte, error) {
	cr := &countingReader{r: body, total: size, onProgress: onProgress, onEOF: onSent}
	u := c.BaseURL + "/upload?" + url.Values{"filename": {name}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, cr)
	if err != nil {
		return 0, nil, err
	}
	if size >= 0 {
		req.ContentLength = size
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	logger.L().Debug("upload_req", "filename", name, "size", size)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}

// GetBytes：GET 并要求 2xx，否则返回 *StatusError
func (c *Client) GetBytes(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: b}
	}
	return b, nil
}

// GetJSON：GET 并解码 JSON
func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	b, err := c.GetBytes(ctx, path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Document：获取 /doc/{id}.json 原始字节，解码与校验由会话负责
func (c *Client) Document(ctx context.Context, id string) ([]byte, error) {
	return c.GetBytes(ctx, "/doc/"+url.PathEscape(id)+".json")
}

// FetchRegion：获取单个区域几何
func (c *Client) FetchRegion(ctx context.Context, id int64) (*doc.Region, error) {
	var r doc.Region
	if err := c.GetJSON(ctx, "/region/"+strconv.FormatInt(id, 10), &r); err != nil {
		return nil, fmt.Errorf("region %d: %w", id, err)
	}
	return &r, nil
}

// 文档注释：JSON POST，遵循 {ok:true} 约定
// 返回：非 2xx 为 *StatusError；响应不是 JSON 或 ok 不为 true 时返回包装了原始文本的 ErrNotOK。
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: b}
	}
	var probe struct {
		OK bool `json:"ok"`
	}
	if json.Unmarshal(b, &probe) != nil || !probe.OK {
		return fmt.Errorf("%w: %s", ErrNotOK, strings.TrimSpace(string(b)))
	}
	if out != nil {
		return json.Unmarshal(b, out)
	}
	return nil
}

// countingReader：回报已读字节；EOF 只回报一次
type countingReader struct {
	r          io.Reader
	read       int64
	total      int64
	onProgress func(loaded, total int64)
	onEOF      func()
	eof        bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.read += int64(n)
		if c.onProgress != nil {
			c.onProgress(c.read, c.total)
		}
	}
	if err == io.EOF && !c.eof {
		c.eof = true
		if c.onEOF != nil {
			c.onEOF()
		}
	}
	return n, err
}
