package membership

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"translator-agent/internal/core/logger"
	"translator-agent/internal/domain"
	"translator-agent/internal/service"
	"translator-agent/internal/transport/http/ez"
)

type Module struct {
	svc *service.MembershipService
	log *zap.Logger
}

func New(svc *service.MembershipService, l *zap.Logger) *Module {
	if l == nil {
		l = zap.NewNop()
	}
	return &Module{svc: svc, log: l}
}

func (m *Module) Priority() int { return 20 }

type historyQ struct {
	Page  int `form:"page,default=1"   binding:"min=1"`
	Limit int `form:"limit,default=10" binding:"min=1,max=100"`
}

func (m *Module) MountAPI(pub, authed *gin.RouterGroup) {
	e := ez.New(pub.Group("/membership"), m.log)
	ea := ez.New(authed.Group("/membership"), m.log)

	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method: http.MethodGet,
		Path:   "/plans",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			plans, err := m.svc.Plans(c.Request.Context())
			if err != nil {
				return nil, err
			}
			if plans == nil {
				plans = []domain.MembershipPlan{}
			}
			return gin.H{"plans": plans}, nil
		},
	})

	ez.RegisterAction(ea, ez.Action[struct{}, gin.H]{
		Method: http.MethodGet,
		Path:   "/current",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			cur, err := m.svc.Current(c.Request.Context(), c.GetString(logger.UserIDKey))
			if err != nil {
				return nil, err
			}
			return gin.H{"membership": cur}, nil
		},
	})

	ez.RegisterAction(ea, ez.Action[historyQ, *service.MembershipHistory]{
		Method: http.MethodGet,
		Path:   "/history",
		Binder: ez.BindQuery,
		Auth:   true,
		Handler: func(c *gin.Context, in *historyQ) (*service.MembershipHistory, error) {
			return m.svc.History(c.Request.Context(), c.GetString(logger.UserIDKey), in.Page, in.Limit)
		},
	})

	ez.RegisterAction(ea, ez.Action[struct{}, *service.UsageReport]{
		Method: http.MethodGet,
		Path:   "/usage",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*service.UsageReport, error) {
			return m.svc.Usage(c.Request.Context(), c.GetString(logger.UserIDKey))
		},
	})

	ez.RegisterAction(ea, ez.Action[struct{}, *service.ExpiryReport]{
		Method: http.MethodPost,
		Path:   "/check-expiry",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*service.ExpiryReport, error) {
			return m.svc.CheckExpiry(c.Request.Context(), c.GetString(logger.UserIDKey))
		},
	})
}

// MountAdmin 管理端批量过期
func (m *Module) MountAdmin(admin *gin.RouterGroup) {
	ez.RegisterAction(ez.New(admin, m.log), ez.Action[struct{}, gin.H]{
		Method: http.MethodPost,
		Path:   "/memberships/expire",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			n, err := m.svc.ExpireAll(c.Request.Context())
			if err != nil {
				return nil, err
			}
			return gin.H{"expired": n}, nil
		},
	})
}
