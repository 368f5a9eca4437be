package translate

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"translator-agent/internal/content"
	"translator-agent/internal/core/logger"
	"translator-agent/internal/domain"
	"translator-agent/internal/pipeline"
	"translator-agent/internal/service"
	"translator-agent/internal/transport/http/ez"
	mdw "translator-agent/internal/transport/http/middleware"
	resp "translator-agent/internal/transport/http/response"
)

const DefaultMaxBatch = 20

type Options struct {
	PerMinute int // 每用户每分钟翻译次数，0 不限
	MaxBatch  int
}

type Module struct {
	svc     *service.TranslateService
	db      *gorm.DB
	limiter mdw.WindowLimiter
	opts    Options
	log     *zap.Logger
}

func New(svc *service.TranslateService, db *gorm.DB, limiter mdw.WindowLimiter, o Options, l *zap.Logger) *Module {
	if o.MaxBatch <= 0 {
		o.MaxBatch = DefaultMaxBatch
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Module{svc: svc, db: db, limiter: limiter, opts: o, log: l}
}

func (m *Module) Priority() int { return 40 }

type translateIn struct {
	Content    string `json:"content"    binding:"required"`
	Type       string `json:"type"       binding:"required,oneof=text file url"`
	SourceLang string `json:"sourceLang" binding:"required"`
	TargetLang string `json:"targetLang" binding:"required"`
}

type usageOut struct {
	CharactersUsed int `json:"charactersUsed"`
	RemainingQuota int `json:"remainingQuota"`
}

type translateOut struct {
	TranslatedText string            `json:"translatedText"`
	Usage          usageOut          `json:"usage"`
	File           *content.FileMeta `json:"file,omitempty"`
	URL            *content.URLMeta  `json:"url,omitempty"`
}

type batchItemIn struct {
	Content    string `json:"content"    binding:"required"`
	SourceLang string `json:"sourceLang" binding:"required"`
	TargetLang string `json:"targetLang" binding:"required"`
}

type batchIn struct {
	Items []batchItemIn `json:"items" binding:"required,min=1,dive"`
}

type batchOut struct {
	Results any      `json:"results"`
	Usage   usageOut `json:"usage"`
}

type detectIn struct {
	Text string `json:"text" binding:"required"`
}

func quotaExceeded(msg string, remaining int) error {
	return &ez.AErr{
		Code: resp.CodeTooManyRequests,
		Msg:  msg,
		Data: gin.H{"error": "QUOTA_EXCEEDED", "remainingQuota": remaining},
	}
}

func (m *Module) MountAPI(_, authed *gin.RouterGroup) {
	g := authed.Group("/translate")
	e := ez.New(g, m.log)

	limited := g.Group("")
	if m.limiter != nil && m.opts.PerMinute > 0 {
		limited.Use(mdw.UserRateLimit(m.limiter, "translate", m.opts.PerMinute, time.Minute, m.log))
	}
	el := ez.New(limited, m.log)

	ez.RegisterAction(el, ez.Action[translateIn, translateOut]{
		Method: http.MethodPost,
		Path:   "",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *translateIn) (translateOut, error) {
			out, err := m.svc.Translate(c.Request.Context(), pipeline.Request{
				UserID:     c.GetString(logger.UserIDKey),
				Content:    in.Content,
				Kind:       content.Kind(in.Type),
				SourceLang: in.SourceLang,
				TargetLang: in.TargetLang,
			})
			if err != nil {
				return translateOut{}, err
			}
			switch out.Kind {
			case pipeline.OutcomeValidationFailed:
				return translateOut{}, ez.BadRequest(out.Message)
			case pipeline.OutcomeQuotaExceeded:
				return translateOut{}, quotaExceeded(out.Message, out.RemainingQuota)
			case pipeline.OutcomeTranslationFailed:
				return translateOut{}, &ez.AErr{Code: resp.CodeServerError, Msg: out.Message}
			}
			return translateOut{
				TranslatedText: out.TranslatedText,
				Usage:          usageOut{CharactersUsed: out.CharactersUsed, RemainingQuota: out.RemainingQuota},
				File:           out.File,
				URL:            out.URL,
			}, nil
		},
	})

	ez.RegisterAction(el, ez.Action[batchIn, batchOut]{
		Method: http.MethodPost,
		Path:   "/batch",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *batchIn) (batchOut, error) {
			if len(in.Items) > m.opts.MaxBatch {
				return batchOut{}, ez.BadRequest(fmt.Sprintf("批量翻译最多 %d 条", m.opts.MaxBatch))
			}
			items := make([]pipeline.BatchItem, len(in.Items))
			for i, it := range in.Items {
				items[i] = pipeline.BatchItem{Content: it.Content, SourceLang: it.SourceLang, TargetLang: it.TargetLang}
			}
			out, err := m.svc.Batch(c.Request.Context(), c.GetString(logger.UserIDKey), items)
			if err != nil {
				return batchOut{}, err
			}
			switch out.Kind {
			case pipeline.OutcomeValidationFailed:
				return batchOut{}, ez.BadRequest(out.Message)
			case pipeline.OutcomeQuotaExceeded:
				return batchOut{}, quotaExceeded(out.Message, out.RemainingQuota)
			}
			return batchOut{
				Results: out.Results,
				Usage:   usageOut{CharactersUsed: out.CharactersUsed, RemainingQuota: out.RemainingQuota},
			}, nil
		},
	})

	ez.RegisterAction(e, ez.Action[detectIn, gin.H]{
		Method: http.MethodPost,
		Path:   "/detect-language",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *detectIn) (gin.H, error) {
			return gin.H{"detectedLanguage": m.svc.Detect(c.Request.Context(), in.Text)}, nil
		},
	})

	ez.POSTFILES(e, "/upload", "file", func(c *gin.Context, files []*multipart.FileHeader) (any, error) {
		fh := files[0]
		f, err := fh.Open()
		if err != nil {
			return nil, ez.BadRequest("无法读取上传文件")
		}
		defer f.Close()
		res, err := m.svc.SaveUpload(fh.Filename, fh.Size, f)
		if errors.Is(err, service.ErrUploadType) || errors.Is(err, service.ErrUploadEmpty) || errors.Is(err, service.ErrUploadTooLarge) {
			return nil, ez.BadRequest(err.Error())
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	})

	ez.Owned(ez.OwnedConfig[domain.TranslationRecord]{
		DB:          m.db,
		Group:       g,
		Path:        "/history",
		New:         func() *domain.TranslationRecord { return &domain.TranslationRecord{} },
		AllowList:   true,
		AllowGet:    true,
		AllowDelete: true,
		ListKey:     "records",
	})

	ez.RegisterAction(e, ez.Action[struct{}, *service.TranslateStats]{
		Method: http.MethodGet,
		Path:   "/stats",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*service.TranslateStats, error) {
			return m.svc.Stats(c.Request.Context(), c.GetString(logger.UserIDKey))
		},
	})
}
