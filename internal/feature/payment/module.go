package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"translator-agent/internal/core/logger"
	"translator-agent/internal/domain"
	"translator-agent/internal/payment/zpay"
	"translator-agent/internal/service"
	"translator-agent/internal/transport/http/ez"
)

type Module struct {
	svc *service.PaymentService
	log *zap.Logger
}

func New(svc *service.PaymentService, l *zap.Logger) *Module {
	if l == nil {
		l = zap.NewNop()
	}
	return &Module{svc: svc, log: l}
}

func (m *Module) Priority() int { return 30 }

type createOrderIn struct {
	PlanID        string  `json:"planId"        binding:"required"`
	PaymentMethod string  `json:"paymentMethod" binding:"required,oneof=zpay alipay wechat"`
	Amount        float64 `json:"amount"        binding:"required,gt=0"`
	Currency      string  `json:"currency"      binding:"required,oneof=CNY USD"`
}

type verifyIn struct {
	OrderID   string `json:"orderId"   binding:"required"`
	PaymentID string `json:"paymentId" binding:"required"`
}

type listOrdersQ struct {
	Status string `form:"status"`
	Offset int    `form:"offset,default=0"  binding:"min=0"`
	Limit  int    `form:"limit,default=20"  binding:"min=1,max=100"`
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrPaymentVerification),
		errors.Is(err, service.ErrPaymentNotCompleted):
		return ez.BadRequest(err.Error())
	case errors.Is(err, service.ErrOrderNotFound):
		return ez.NotFound(err.Error())
	case errors.Is(err, service.ErrOrderBusy):
		return ez.TooManyRequests(err.Error())
	case errors.Is(err, service.ErrPaymentCreate):
		return ez.Internal(service.ErrPaymentCreate.Error(), err)
	}
	return err
}

func (m *Module) MountAPI(pub, authed *gin.RouterGroup) {
	e := ez.New(pub.Group("/payment"), m.log)
	ea := ez.New(authed.Group("/payment"), m.log)

	ez.RegisterAction(ea, ez.Action[createOrderIn, *service.OrderView]{
		Method: http.MethodPost,
		Path:   "/orders",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *createOrderIn) (*service.OrderView, error) {
			o, err := m.svc.CreateOrder(c.Request.Context(), c.GetString(logger.UserIDKey), service.CreateOrderInput{
				PlanID: in.PlanID, PaymentMethod: in.PaymentMethod, Amount: in.Amount, Currency: in.Currency,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			return o, nil
		},
	})

	ez.RegisterAction(ea, ez.Action[struct{}, *domain.PaymentOrder]{
		Method: http.MethodGet,
		Path:   "/orders/:orderId",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.PaymentOrder, error) {
			o, err := m.svc.GetOrder(c.Request.Context(), c.GetString(logger.UserIDKey), c.Param("orderId"))
			if err != nil {
				return nil, mapErr(err)
			}
			return o, nil
		},
	})

	// 网关回调，不走登录，靠签名
	ez.RegisterAction(e, ez.Action[zpay.Notification, gin.H]{
		Method: http.MethodPost,
		Path:   "/webhook/zpay",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *zpay.Notification) (gin.H, error) {
			msg, err := m.svc.HandleNotification(c.Request.Context(), *in)
			if err != nil {
				return nil, mapErr(err)
			}
			return gin.H{"message": msg}, nil
		},
	})

	ez.RegisterAction(ea, ez.Action[verifyIn, *service.VerifyResult]{
		Method: http.MethodPost,
		Path:   "/verify",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *verifyIn) (*service.VerifyResult, error) {
			res, err := m.svc.Verify(c.Request.Context(), c.GetString(logger.UserIDKey), in.OrderID, in.PaymentID)
			if err != nil {
				return nil, mapErr(err)
			}
			return res, nil
		},
	})
}

func (m *Module) MountAdmin(admin *gin.RouterGroup) {
	e := ez.New(admin, m.log)

	ez.RegisterAction(e, ez.Action[listOrdersQ, *service.OrderList]{
		Method: http.MethodGet,
		Path:   "/orders",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *listOrdersQ) (*service.OrderList, error) {
			res, err := m.svc.ListOrders(c.Request.Context(), domain.OrderStatus(in.Status), in.Offset, in.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			return res, nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *domain.PaymentOrder]{
		Method: http.MethodPost,
		Path:   "/orders/:id/refund",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.PaymentOrder, error) {
			o, err := m.svc.Refund(c.Request.Context(), c.Param("id"))
			if err != nil {
				return nil, mapErr(err)
			}
			return o, nil
		},
	})
}
