package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"translator-agent/internal/crawl"
)

type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
	KindURL  Kind = "url"
)

func (k Kind) Valid() bool { return k == KindText || k == KindFile || k == KindURL }

var (
	ErrEmpty           = errors.New("内容不能为空")
	ErrUnknownKind     = errors.New("不支持的内容类型")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNotFound        = errors.New("file not found")
	ErrRead            = errors.New("file read failed")
	ErrOutsideRoot     = errors.New("file path outside content root")
	ErrInvalidURL      = errors.New("请提供有效的 http/https URL")
	ErrFetchTimeout    = errors.New("url fetch timed out")
	ErrFetchFailed     = errors.New("url fetch failed")
	ErrTooLong         = errors.New("content too long")
)

// 允许读取的文本文件扩展名
var allowedExt = map[string]bool{
	".md": true, ".txt": true, ".html": true, ".htm": true, ".json": true,
	".js": true, ".ts": true, ".jsx": true, ".tsx": true, ".css": true,
	".xml": true, ".csv": true, ".yaml": true, ".yml": true,
}

func AllowedExtension(name string) bool {
	return allowedExt[strings.ToLower(filepath.Ext(name))]
}

// MaxLength 各类型解析后文本的最大字符数
func MaxLength(k Kind) int {
	switch k {
	case KindFile:
		return 50000
	case KindURL:
		return 100000
	default:
		return 10000
	}
}

type Descriptor struct {
	Content string
	Kind    Kind
}

type FileMeta struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
	SizeBytes int64  `json:"sizeBytes"`
}

type URLMeta struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type Resolved struct {
	Text string
	File *FileMeta
	URL  *URLMeta
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*crawl.Page, error)
}

// Resolver 把请求内容解析成待翻译文本，不修改任何持久化状态
type Resolver struct {
	fetcher  Fetcher
	fileRoot string
}

// New fileRoot 为空时不限制文件路径
func New(f Fetcher, fileRoot string) *Resolver {
	if fileRoot != "" {
		if abs, err := filepath.Abs(fileRoot); err == nil {
			fileRoot = abs
		}
	}
	return &Resolver{fetcher: f, fileRoot: fileRoot}
}

func (r *Resolver) FileRoot() string { return r.fileRoot }

// Validate 只做形状校验，不做 I/O
func (r *Resolver) Validate(d Descriptor) error {
	if strings.TrimSpace(d.Content) == "" {
		return ErrEmpty
	}
	switch d.Kind {
	case KindText:
		if n := utf8.RuneCountInString(d.Content); n > MaxLength(KindText) {
			return fmt.Errorf("%w: %d > %d", ErrTooLong, n, MaxLength(KindText))
		}
	case KindFile:
	case KindURL:
		if _, err := parseHTTPURL(d.Content); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, d.Kind)
	}
	return nil
}

func (r *Resolver) Resolve(ctx context.Context, d Descriptor) (*Resolved, error) {
	var (
		out *Resolved
		err error
	)
	switch d.Kind {
	case KindText:
		out = &Resolved{Text: d.Content}
	case KindFile:
		out, err = r.readFile(d.Content)
	case KindURL:
		out, err = r.fetchURL(ctx, d.Content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, d.Kind)
	}
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(out.Text); n > MaxLength(d.Kind) {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLong, n, MaxLength(d.Kind))
	}
	return out, nil
}

func (r *Resolver) readFile(p string) (*Resolved, error) {
	ext := strings.ToLower(filepath.Ext(p))
	if !allowedExt[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	path, err := r.locate(p)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(p))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrRead, filepath.Base(p))
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return &Resolved{
		Text: string(b),
		File: &FileMeta{Name: filepath.Base(path), Extension: ext, SizeBytes: st.Size()},
	}, nil
}

// locate 相对路径按 fileRoot 解析，且不能跳出 fileRoot
func (r *Resolver) locate(p string) (string, error) {
	if r.fileRoot == "" {
		return filepath.Clean(p), nil
	}
	path := p
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.fileRoot, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(r.fileRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return path, nil
}

func (r *Resolver) fetchURL(ctx context.Context, raw string) (*Resolved, error) {
	u, err := parseHTTPURL(raw)
	if err != nil {
		return nil, err
	}
	if r.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrFetchFailed)
	}
	page, err := r.fetcher.Fetch(ctx, u.String())
	switch {
	case errors.Is(err, crawl.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %v", ErrFetchTimeout, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	text := page.Markdown
	if strings.TrimSpace(text) == "" {
		text = page.HTML
	}
	pageURL := page.URL
	if pageURL == "" {
		pageURL = u.String()
	}
	return &Resolved{Text: text, URL: &URLMeta{URL: pageURL, Title: page.Title}}, nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalidURL
	}
	return u, nil
}
