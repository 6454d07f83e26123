package response

import "fmt"

// AppError 业务错误包装，携带响应码与提示消息
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap 暴露底层错误供 errors.Is/As 使用
func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装业务错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
