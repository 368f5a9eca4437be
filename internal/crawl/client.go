package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrTimeout = errors.New("crawl task timed out")
	ErrFailed  = errors.New("crawl task failed")
)

type Options struct {
	BaseURL      string
	MaxAttempts  int
	PollInterval time.Duration
	Timeout      time.Duration // 单次 HTTP 请求超时
}

// Page 抓取结果
type Page struct {
	URL      string
	Title    string
	HTML     string
	Markdown string
}

// Client Crawl4AI 任务接口：提交 → 轮询
type Client struct {
	baseURL      string
	maxAttempts  int
	pollInterval time.Duration
	hc           *http.Client
	log          *zap.Logger

	// 同一 URL 的并发抓取共用一个任务
	group singleflight.Group
}

func New(o Options, l *zap.Logger) *Client {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 30
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(o.BaseURL, "/"),
		maxAttempts:  o.MaxAttempts,
		pollInterval: o.PollInterval,
		hc:           &http.Client{Timeout: o.Timeout},
		log:          l.Named("crawl"),
	}
}

func (c *Client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	v, err, shared := c.group.Do(rawURL, func() (any, error) {
		id, err := c.Submit(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		c.log.Info("crawl task submitted", zap.String("url", rawURL), zap.String("task_id", id))
		return c.Poll(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("crawl result shared", zap.String("url", rawURL))
	}
	return v.(*Page), nil
}

func (c *Client) Submit(ctx context.Context, rawURL string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"urls":     []string{rawURL},
		"priority": 10,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/crawl", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, status, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("submit crawl: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: submit status=%d body=%s", ErrFailed, status, truncateBody(raw))
	}
	var out struct {
		TaskIDs []string `json:"task_ids"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode submit response: %w (body=%s)", err, truncateBody(raw))
	}
	if len(out.TaskIDs) == 0 || out.TaskIDs[0] == "" {
		return "", fmt.Errorf("%w: no task id returned", ErrFailed)
	}
	return out.TaskIDs[0], nil
}

type taskResp struct {
	Status string `json:"status"`
	Result *struct {
		Status string `json:"status"`
		Error  string `json:"error"`
		Data   struct {
			URL             string `json:"url"`
			Title           string `json:"title"`
			HTMLContent     string `json:"html_content"`
			MarkdownContent string `json:"markdown_content"`
		} `json:"data"`
	} `json:"result"`
}

// Poll 每 pollInterval 查询一次，最多 maxAttempts 次
func (c *Client) Poll(ctx context.Context, taskID string) (*Page, error) {
	for i := 0; i < c.maxAttempts; i++ {
		page, done, err := c.check(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if done {
			return page, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return nil, ErrTimeout
}

func (c *Client) check(ctx context.Context, taskID string) (*Page, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/task/"+taskID, nil)
	if err != nil {
		return nil, false, fmt.Errorf("new request: %w", err)
	}
	raw, status, err := c.do(req)
	if err != nil {
		// 网络抖动按未完成处理，继续轮询
		c.log.Warn("crawl poll error", zap.String("task_id", taskID), zap.Error(err))
		return nil, false, nil
	}
	if status != http.StatusOK {
		return nil, false, nil
	}
	var tr taskResp
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, false, fmt.Errorf("decode task response: %w (body=%s)", err, truncateBody(raw))
	}
	// failed 是终态，直接返回
	if tr.Status == "failed" {
		msg := "task failed"
		if tr.Result != nil && tr.Result.Error != "" {
			msg = tr.Result.Error
		}
		return nil, true, fmt.Errorf("%w: %s", ErrFailed, msg)
	}
	if tr.Status != "completed" {
		return nil, false, nil
	}
	if tr.Result == nil || tr.Result.Status != "success" {
		msg := "unknown error"
		if tr.Result != nil && tr.Result.Error != "" {
			msg = tr.Result.Error
		}
		return nil, true, fmt.Errorf("%w: %s", ErrFailed, msg)
	}
	d := tr.Result.Data
	return &Page{URL: d.URL, Title: d.Title, HTML: d.HTMLContent, Markdown: d.MarkdownContent}, true, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
