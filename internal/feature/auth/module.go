package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"translator-agent/internal/core/logger"
	"translator-agent/internal/service"
	"translator-agent/internal/transport/http/ez"
)

type Module struct {
	svc *service.AuthService
	log *zap.Logger
}

func New(svc *service.AuthService, l *zap.Logger) *Module {
	if l == nil {
		l = zap.NewNop()
	}
	return &Module{svc: svc, log: l}
}

func (m *Module) Priority() int { return 10 }

type registerIn struct {
	Username string `json:"username" binding:"required,min=2,max=20"`
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type loginIn struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshIn struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type profileIn struct {
	Username *string `json:"username" binding:"omitempty,min=2,max=20"`
	Avatar   *string `json:"avatar"   binding:"omitempty,max=255"`
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, service.ErrUserExists),
		errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrNoFields):
		return ez.BadRequest(err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		return ez.Unauthorized(err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		return ez.NotFound(err.Error())
	}
	return err
}

func (m *Module) MountAPI(pub, authed *gin.RouterGroup) {
	e := ez.New(pub.Group("/auth"), m.log)
	ea := ez.New(authed.Group("/auth"), m.log)

	ez.RegisterAction(e, ez.Action[registerIn, gin.H]{
		Method: http.MethodPost,
		Path:   "/register",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *registerIn) (gin.H, error) {
			u, err := m.svc.Register(c.Request.Context(), service.RegisterInput{
				Username: in.Username, Email: in.Email, Password: in.Password,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			return gin.H{"user": u}, nil
		},
	})

	ez.RegisterAction(e, ez.Action[loginIn, *service.LoginResult]{
		Method: http.MethodPost,
		Path:   "/login",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *loginIn) (*service.LoginResult, error) {
			res, err := m.svc.Login(c.Request.Context(), in.Email, in.Password)
			if err != nil {
				return nil, mapErr(err)
			}
			return res, nil
		},
	})

	ez.RegisterAction(e, ez.Action[refreshIn, gin.H]{
		Method: http.MethodPost,
		Path:   "/refresh",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *refreshIn) (gin.H, error) {
			tok, err := m.svc.Refresh(c.Request.Context(), in.RefreshToken)
			if err != nil {
				return nil, mapErr(err)
			}
			return gin.H{"token": tok}, nil
		},
	})

	ez.RegisterAction(ea, ez.Action[struct{}, gin.H]{
		Method: http.MethodGet,
		Path:   "/profile",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			u, err := m.svc.Profile(c.Request.Context(), c.GetString(logger.UserIDKey))
			if err != nil {
				return nil, mapErr(err)
			}
			return gin.H{"user": u}, nil
		},
	})

	ez.RegisterAction(ea, ez.Action[profileIn, gin.H]{
		Method: http.MethodPut,
		Path:   "/profile",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *profileIn) (gin.H, error) {
			u, err := m.svc.UpdateProfile(c.Request.Context(), c.GetString(logger.UserIDKey), in.Username, in.Avatar)
			if err != nil {
				return nil, mapErr(err)
			}
			return gin.H{"user": u}, nil
		},
	})
}
