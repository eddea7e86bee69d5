package services

import (
	"errors"

	"chat-relay/internal/metrics"
)

// 管道中向发送者报告的错误类型。调用方使用 errors.Is 区分。
var (
	ErrValidation  = errors.New("validation error")
	ErrMediaUpload = errors.New("media upload error")
	ErrPersistence = errors.New("persistence error")
)

// resultLabel maps a pipeline error to its metrics label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultDelivered
	case errors.Is(err, ErrValidation):
		return metrics.ResultValidationError
	case errors.Is(err, ErrMediaUpload):
		return metrics.ResultMediaError
	default:
		return metrics.ResultPersistError
	}
}
