package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"translator-agent/internal/service"
	"translator-agent/internal/transport/http/ez"
)

// Module 用户管理，仅挂管理端
type Module struct {
	svc *service.AdminService
	log *zap.Logger
}

func New(svc *service.AdminService, l *zap.Logger) *Module {
	if l == nil {
		l = zap.NewNop()
	}
	return &Module{svc: svc, log: l}
}

type listQ struct {
	Offset int    `form:"offset,default=0" binding:"min=0"`
	Limit  int    `form:"limit,default=20" binding:"min=1,max=100"`
	Q      string `form:"q"` // 按 email/username 模糊搜
}

func (m *Module) MountAdmin(admin *gin.RouterGroup) {
	e := ez.New(admin, m.log)

	ez.RegisterAction(e, ez.Action[listQ, *service.UserList]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *listQ) (*service.UserList, error) {
			return m.svc.ListUsers(c.Request.Context(), in.Q, in.Offset, in.Limit)
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method: http.MethodPost,
		Path:   "/users/:id/ban",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			id := c.Param("id")
			if err := m.svc.Ban(c.Request.Context(), id); err != nil {
				if errors.Is(err, service.ErrUserNotFound) {
					return nil, ez.NotFound(err.Error())
				}
				return nil, err
			}
			return gin.H{"id": id}, nil
		},
	})
}
