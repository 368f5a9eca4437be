package ez

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"translator-agent/internal/core/logger"
	resp "translator-agent/internal/transport/http/response"
)

type EZ struct {
	g   *gin.RouterGroup
	log *zap.Logger
}

func New(g *gin.RouterGroup, l *zap.Logger) EZ {
	if l == nil {
		l = zap.NewNop()
	}
	return EZ{g: g, log: l}
}

func (e EZ) Group() *gin.RouterGroup { return e.g }

// Binder 入参绑定方式
type Binder string

const (
	BindJSON  Binder = "json"
	BindQuery Binder = "query"
	BindNone  Binder = "none" // 自己从 c.Param / c.PostForm 取
)

// AErr 业务错误，Code 对应 resp 里的码
type AErr struct {
	Code int
	Msg  string
	Err  error
	Data any // 失败时附带的数据，可选
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error      { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }
func Unauthorized(msg string) error    { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func Forbidden(msg string) error       { return &AErr{Code: resp.CodeForbidden, Msg: msg} }
func NotFound(msg string) error        { return &AErr{Code: resp.CodeNotFound, Msg: msg} }
func TooManyRequests(msg string) error { return &AErr{Code: resp.CodeTooManyRequests, Msg: msg} }
func Timeout(msg string) error         { return &AErr{Code: resp.CodeTimeout, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: resp.CodeServerError, Msg: msg, Err: err}
}

// Action I 入参，O 出参
type Action[I any, O any] struct {
	Method  string // GET | POST | PUT | DELETE
	Path    string
	Binder  Binder
	Auth    bool     // 要求 userId
	Roles   []string // 限定角色
	Handler func(c *gin.Context, in *I) (O, error)
}

func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	h := func(c *gin.Context) {
		if a.Auth {
			if c.GetString(logger.UserIDKey) == "" {
				c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "unauthorized"))
				return
			}
			if len(a.Roles) > 0 && !hasRole(c.GetString("role"), a.Roles) {
				c.JSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
				return
			}
		}

		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		}
		if bindErr != nil {
			c.JSON(http.StatusOK, bindFailure(bindErr, ""))
			return
		}

		out, err := a.Handler(c, &in)
		if err != nil {
			e.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default:
		e.g.POST(a.Path, h)
	}
}

// Fail 统一错误输出；非 AErr 一律 500，细节只进日志
func (e EZ) Fail(c *gin.Context, err error) {
	var ae *AErr
	if errors.As(err, &ae) {
		if ae.Code >= resp.CodeServerError {
			logger.FromGin(c, e.log).Error("action failed", zap.String("path", c.FullPath()), zap.Error(err))
		}
		if ae.Data != nil {
			c.JSON(http.StatusOK, resp.ErrorData(ae.Code, ae.Error(), ae.Data))
			return
		}
		c.JSON(http.StatusOK, resp.Error(ae.Code, ae.Error()))
		return
	}
	logger.FromGin(c, e.log).Error("action failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, ""))
}

func hasRole(role string, allowed []string) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}

// POSTFILES multipart/form-data 上传
func POSTFILES(e EZ, path string, fieldName string, h func(c *gin.Context, files []*multipart.FileHeader) (any, error)) {
	e.g.POST(path, func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusOK, bindFailure(err, "invalid multipart form: "))
			return
		}
		files := form.File[fieldName]
		if len(files) == 0 {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, "no files uploaded"))
			return
		}
		data, err := h(c, files)
		if err != nil {
			e.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.OK(data))
	})
}

// bindFailure 读 body 撞上 MaxBytesReader 上限时给 413，其余按 400
func bindFailure(err error, prefix string) resp.Resp {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return resp.Error(resp.CodeTooLarge, fmt.Sprintf("请求体不能超过 %d 字节", tooLarge.Limit))
	}
	return resp.Error(resp.CodeBadRequest, prefix+err.Error())
}
