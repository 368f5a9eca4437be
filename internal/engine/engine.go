package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

var (
	ErrEmptyContent = errors.New("翻译内容不能为空")
	ErrBatchBudget  = errors.New("批量翻译超出时间预算")
)

// Generator 模型调用，llm.Client 实现
type Generator interface {
	Generate(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error)
}

type Request struct {
	Content    string
	SourceLang string
	TargetLang string
}

// Result Success=false 时 Error 为可展示的失败原因
type Result struct {
	Success        bool   `json:"success"`
	TranslatedText string `json:"translatedText,omitempty"`
	OriginalText   string `json:"originalText"`
	SourceLang     string `json:"sourceLang"`
	TargetLang     string `json:"targetLang"`
	CharCount      int    `json:"characterCount"`
	Error          string `json:"error,omitempty"`

	Err error `json:"-"`
}

type Engine struct {
	gen        Generator
	batchDelay time.Duration
	// 整个批量的墙钟上限，0 不限
	batchBudget time.Duration
	log         *zap.Logger
}

func New(gen Generator, batchDelay time.Duration, l *zap.Logger) *Engine {
	if l == nil {
		l = zap.NewNop()
	}
	return &Engine{gen: gen, batchDelay: batchDelay, log: l.Named("engine")}
}

// WithBatchBudget 要小于 HTTP 写超时，否则响应会在记账之后被丢弃
func (e *Engine) WithBatchBudget(d time.Duration) *Engine {
	e.batchBudget = d
	return e
}

// CharCount 按 Unicode 字符计数，计费与校验统一用它
func CharCount(s string) int { return utf8.RuneCountInString(s) }

var languageNames = map[string]string{
	"zh":   "中文",
	"en":   "英文",
	"ja":   "日文",
	"ko":   "韩文",
	"fr":   "法文",
	"de":   "德文",
	"es":   "西班牙文",
	"ru":   "俄文",
	"it":   "意大利文",
	"pt":   "葡萄牙文",
	"ar":   "阿拉伯文",
	"hi":   "印地文",
	"th":   "泰文",
	"vi":   "越南文",
	"auto": "自动检测",
}

// LanguageName 未知代码原样返回
func LanguageName(code string) string {
	if n, ok := languageNames[code]; ok {
		return n
	}
	return code
}

func systemPrompt(source, target string) string {
	return fmt.Sprintf(`你是一个专业的翻译助手。请将用户提供的内容从%s翻译成%s。

翻译要求：
1. 保持原文的意思和语调
2. 使用自然、流畅的表达
3. 保留原文的格式和结构
4. 对于专业术语，提供准确的翻译
5. 如果是代码或技术文档，保持专业性
6. 如果遇到无法翻译的内容，请保持原文

请直接输出翻译结果，不要添加任何解释或说明。`, LanguageName(source), LanguageName(target))
}

func (e *Engine) Translate(ctx context.Context, req Request) Result {
	res := Result{
		OriginalText: req.Content,
		SourceLang:   req.SourceLang,
		TargetLang:   req.TargetLang,
		CharCount:    CharCount(req.Content),
	}
	if strings.TrimSpace(req.Content) == "" {
		res.CharCount = 0
		res.Err = ErrEmptyContent
		res.Error = ErrEmptyContent.Error()
		return res
	}
	if req.SourceLang == req.TargetLang && req.SourceLang != "auto" {
		res.Success = true
		res.TranslatedText = req.Content
		return res
	}

	maxTokens := 2 * res.CharCount
	if maxTokens > 4000 {
		maxTokens = 4000
	}
	out, err := e.gen.Generate(ctx, systemPrompt(req.SourceLang, req.TargetLang), req.Content, 0.1, maxTokens)
	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("翻译服务返回空结果")
	}
	if err != nil {
		e.log.Warn("translate failed",
			zap.String("source", req.SourceLang),
			zap.String("target", req.TargetLang),
			zap.Int("chars", res.CharCount),
			zap.Error(err),
		)
		res.Err = err
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.TranslatedText = strings.TrimSpace(out)
	return res
}

var detectable = map[string]bool{
	"zh": true, "en": true, "ja": true, "ko": true, "fr": true,
	"de": true, "es": true, "ru": true, "it": true, "pt": true,
}

const detectPrompt = `你是一个语言检测助手。请检测用户输入文本的语言，只返回语言代码。

支持的语言代码：
- zh: 中文
- en: 英文
- ja: 日文
- ko: 韩文
- fr: 法文
- de: 德文
- es: 西班牙文
- ru: 俄文
- it: 意大利文
- pt: 葡萄牙文

请只返回语言代码，不要添加任何其他内容。`

// DetectLanguage 无法识别或调用失败都返回 "auto"
func (e *Engine) DetectLanguage(ctx context.Context, text string) string {
	sample := text
	if r := []rune(text); len(r) > 200 {
		sample = string(r[:200])
	}
	out, err := e.gen.Generate(ctx, detectPrompt, sample, 0, 10)
	if err != nil {
		e.log.Warn("detect language failed", zap.Error(err))
		return "auto"
	}
	code := strings.ToLower(strings.TrimSpace(out))
	if detectable[code] {
		return code
	}
	return "auto"
}

// BatchTranslate 顺序执行，条目之间间隔 batchDelay，不重试。
// 超出 batchBudget 后进行中的调用被取消，剩余条目直接标记失败
func (e *Engine) BatchTranslate(ctx context.Context, reqs []Request) []Result {
	if e.batchBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.batchBudget)
		defer cancel()
	}
	results := make([]Result, 0, len(reqs))
	for i, r := range reqs {
		if i > 0 && e.batchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.batchDelay):
			}
		}
		if ctx.Err() != nil {
			results = append(results, budgetExceeded(r))
			continue
		}
		res := e.Translate(ctx, r)
		if !res.Success && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res = budgetExceeded(r)
		}
		results = append(results, res)
	}
	if skipped := countFailed(results, ErrBatchBudget); skipped > 0 {
		e.log.Warn("batch budget exceeded",
			zap.Duration("budget", e.batchBudget),
			zap.Int("items", len(reqs)),
			zap.Int("unfinished", skipped),
		)
	}
	return results
}

func budgetExceeded(r Request) Result {
	return Result{
		OriginalText: r.Content,
		SourceLang:   r.SourceLang,
		TargetLang:   r.TargetLang,
		CharCount:    CharCount(r.Content),
		Error:        ErrBatchBudget.Error(),
		Err:          ErrBatchBudget,
	}
}

func countFailed(results []Result, target error) int {
	n := 0
	for _, r := range results {
		if errors.Is(r.Err, target) {
			n++
		}
	}
	return n
}
