package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"translator-agent/internal/content"
	"translator-agent/internal/domain"
	"translator-agent/internal/engine"
	"translator-agent/internal/quota"
)

type Stage string

const (
	StageValidating  Stage = "validating"
	StageResolving   Stage = "resolving"
	StageQuotaCheck  Stage = "quota_check"
	StageTranslating Stage = "translating"
	StageRecording   Stage = "recording"
	StageDone        Stage = "done"
)

type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeQuotaExceeded     OutcomeKind = "quota_exceeded"
	OutcomeValidationFailed  OutcomeKind = "validation_failed"
	OutcomeTranslationFailed OutcomeKind = "translation_failed"
)

var (
	outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "translate_outcomes_total", Help: "Translation pipeline outcomes"},
		[]string{"kind", "outcome"},
	)
	charsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "translate_characters_total", Help: "Characters successfully translated"},
	)
	pipelineLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "translate_pipeline_duration_seconds",
			Help:    "End-to-end latency of the translation pipeline",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"},
	)
)

func init() { prometheus.MustRegister(outcomesTotal, charsTotal, pipelineLatency) }

type Resolver interface {
	Validate(d content.Descriptor) error
	Resolve(ctx context.Context, d content.Descriptor) (*content.Resolved, error)
}

type Ledger interface {
	Check(ctx context.Context, userID string, proposed int) (quota.Decision, error)
	Record(ctx context.Context, userID string, chars int) error
}

type Translator interface {
	Translate(ctx context.Context, req engine.Request) engine.Result
	BatchTranslate(ctx context.Context, reqs []engine.Request) []engine.Result
}

type Request struct {
	UserID     string
	Content    string
	Kind       content.Kind
	SourceLang string
	TargetLang string
}

type Outcome struct {
	Kind           OutcomeKind
	Stage          Stage // 失败时停在哪一步
	TranslatedText string
	CharactersUsed int
	RemainingQuota int
	Message        string
	File           *content.FileMeta
	URL            *content.URLMeta
}

// Orchestrator 校验 → 解析 → 额度 → 翻译 → 记账
type Orchestrator struct {
	resolver Resolver
	ledger   Ledger
	engine   Translator
	records  domain.TranslationRepository
	log      *zap.Logger
}

func New(r Resolver, l Ledger, e Translator, records domain.TranslationRepository, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{resolver: r, ledger: l, engine: e, records: records, log: log.Named("pipeline")}
}

// Run 返回的 error 只表示存储类内部错误，业务失败都在 Outcome 里
func (o *Orchestrator) Run(ctx context.Context, req Request) (out *Outcome, err error) {
	// 客户端断开不打断流水线，外部调用各自有超时
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	defer func() {
		label := "error"
		if out != nil {
			label = string(out.Kind)
		}
		outcomesTotal.WithLabelValues(string(req.Kind), label).Inc()
		pipelineLatency.WithLabelValues(string(req.Kind)).Observe(time.Since(start).Seconds())
	}()
	log := o.log.With(zap.String("user_id", req.UserID), zap.String("kind", string(req.Kind)))

	d := content.Descriptor{Content: req.Content, Kind: req.Kind}
	if err := validateLangs(req.SourceLang, req.TargetLang); err != nil {
		return &Outcome{Kind: OutcomeValidationFailed, Stage: StageValidating, Message: err.Error()}, nil
	}
	if err := o.resolver.Validate(d); err != nil {
		return &Outcome{Kind: OutcomeValidationFailed, Stage: StageValidating, Message: err.Error()}, nil
	}

	resolved, err := o.resolver.Resolve(ctx, d)
	if err != nil {
		log.Warn("content resolution failed", zap.Error(err))
		msg := resolveMessage(req.Kind, err)
		if err := o.saveFailed(ctx, req, req.Content, 0, msg); err != nil {
			return nil, err
		}
		return &Outcome{Kind: OutcomeTranslationFailed, Stage: StageResolving, Message: msg}, nil
	}

	chars := engine.CharCount(resolved.Text)
	decision, err := o.ledger.Check(ctx, req.UserID, chars)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !decision.Allowed {
		log.Info("quota exceeded", zap.Int("remaining", decision.Remaining), zap.Int("required", chars))
		return &Outcome{
			Kind:           OutcomeQuotaExceeded,
			Stage:          StageQuotaCheck,
			Message:        decision.Reason,
			RemainingQuota: decision.Remaining,
		}, nil
	}

	res := o.engine.Translate(ctx, engine.Request{
		Content:    resolved.Text,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
	})
	if !res.Success {
		if err := o.saveFailed(ctx, req, resolved.Text, res.CharCount, res.Error); err != nil {
			return nil, err
		}
		return &Outcome{Kind: OutcomeTranslationFailed, Stage: StageTranslating, Message: res.Error}, nil
	}

	if err := o.saveCompleted(ctx, req, res); err != nil {
		return nil, err
	}
	if err := o.ledger.Record(ctx, req.UserID, res.CharCount); err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}
	charsTotal.Add(float64(res.CharCount))
	log.Info("translation done", zap.Int("chars", res.CharCount))

	return &Outcome{
		Kind:           OutcomeSuccess,
		Stage:          StageDone,
		TranslatedText: res.TranslatedText,
		CharactersUsed: res.CharCount,
		RemainingQuota: quota.RemainingAfter(decision.Remaining, res.CharCount),
		File:           resolved.File,
		URL:            resolved.URL,
	}, nil
}

type BatchItem struct {
	Content    string
	SourceLang string
	TargetLang string
}

type BatchOutcome struct {
	Kind           OutcomeKind
	Message        string
	Results        []engine.Result
	CharactersUsed int
	RemainingQuota int
}

// RunBatch 纯文本批量：额度按总字符数检查一次，成功条目逐条记账
func (o *Orchestrator) RunBatch(ctx context.Context, userID string, items []BatchItem) (*BatchOutcome, error) {
	ctx = context.WithoutCancel(ctx)

	reqs := make([]engine.Request, 0, len(items))
	total := 0
	for i, it := range items {
		if err := validateLangs(it.SourceLang, it.TargetLang); err != nil {
			return &BatchOutcome{Kind: OutcomeValidationFailed, Message: fmt.Sprintf("item %d: %v", i, err)}, nil
		}
		if err := o.resolver.Validate(content.Descriptor{Content: it.Content, Kind: content.KindText}); err != nil {
			return &BatchOutcome{Kind: OutcomeValidationFailed, Message: fmt.Sprintf("item %d: %v", i, err)}, nil
		}
		reqs = append(reqs, engine.Request{Content: it.Content, SourceLang: it.SourceLang, TargetLang: it.TargetLang})
		total += engine.CharCount(it.Content)
	}

	decision, err := o.ledger.Check(ctx, userID, total)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !decision.Allowed {
		return &BatchOutcome{Kind: OutcomeQuotaExceeded, Message: decision.Reason, RemainingQuota: decision.Remaining}, nil
	}

	results := o.engine.BatchTranslate(ctx, reqs)
	used := 0
	for i, res := range results {
		req := Request{UserID: userID, Kind: content.KindText, SourceLang: reqs[i].SourceLang, TargetLang: reqs[i].TargetLang}
		if !res.Success {
			if err := o.saveFailed(ctx, req, res.OriginalText, res.CharCount, res.Error); err != nil {
				return nil, err
			}
			continue
		}
		if err := o.saveCompleted(ctx, req, res); err != nil {
			return nil, err
		}
		if err := o.ledger.Record(ctx, userID, res.CharCount); err != nil {
			return nil, fmt.Errorf("record usage: %w", err)
		}
		used += res.CharCount
	}
	charsTotal.Add(float64(used))
	outcomesTotal.WithLabelValues("batch", string(OutcomeSuccess)).Inc()

	return &BatchOutcome{
		Kind:           OutcomeSuccess,
		Results:        results,
		CharactersUsed: used,
		RemainingQuota: quota.RemainingAfter(decision.Remaining, used),
	}, nil
}

func (o *Orchestrator) saveCompleted(ctx context.Context, req Request, res engine.Result) error {
	out := res.TranslatedText
	err := o.records.Create(ctx, &domain.TranslationRecord{
		UserID:         req.UserID,
		SourceText:     res.OriginalText,
		TargetText:     &out,
		SourceLang:     req.SourceLang,
		TargetLang:     req.TargetLang,
		Type:           string(req.Kind),
		CharacterCount: res.CharCount,
		Status:         domain.TranslationCompleted,
	})
	if err != nil {
		return fmt.Errorf("save translation record: %w", err)
	}
	return nil
}

func (o *Orchestrator) saveFailed(ctx context.Context, req Request, source string, chars int, msg string) error {
	err := o.records.Create(ctx, &domain.TranslationRecord{
		UserID:         req.UserID,
		SourceText:     source,
		SourceLang:     req.SourceLang,
		TargetLang:     req.TargetLang,
		Type:           string(req.Kind),
		CharacterCount: chars,
		Status:         domain.TranslationFailed,
		ErrorMessage:   &msg,
	})
	if err != nil {
		return fmt.Errorf("save failed record: %w", err)
	}
	return nil
}

var errLangRequired = errors.New("sourceLang and targetLang are required")

func validateLangs(source, target string) error {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(target) == "" {
		return errLangRequired
	}
	return nil
}

func resolveMessage(k content.Kind, err error) string {
	switch k {
	case content.KindFile:
		return "文件读取失败: " + err.Error()
	case content.KindURL:
		return "网页获取失败: " + err.Error()
	}
	return err.Error()
}
