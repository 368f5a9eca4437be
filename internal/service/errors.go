package service

import "errors"

var (
	ErrUserExists         = errors.New("User with this email or username already exists")
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrUserNotFound       = errors.New("User not found")
	ErrUsernameTaken      = errors.New("Username already taken")
	ErrNoFields           = errors.New("No fields to update")
	ErrInvalidToken       = errors.New("Invalid refresh token")

	ErrPlanNotFound        = errors.New("Invalid membership plan")
	ErrAmountMismatch      = errors.New("Amount mismatch")
	ErrOrderNotFound       = errors.New("Order not found")
	ErrInvalidSignature    = errors.New("Invalid signature")
	ErrInvalidStatus       = errors.New("Invalid order status")
	ErrOrderBusy           = errors.New("Order is being processed")
	ErrPaymentVerification = errors.New("Payment verification failed")
	ErrPaymentNotCompleted = errors.New("Payment not completed")
	ErrPaymentCreate       = errors.New("Payment creation failed")

	ErrUploadType     = errors.New("不支持的文件类型")
	ErrUploadTooLarge = errors.New("文件过大")
	ErrUploadEmpty    = errors.New("文件为空")
)
