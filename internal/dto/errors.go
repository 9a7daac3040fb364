package dto

// BaseError общий формат ошибки API
// Code: машинный код (snake_case)
// Message: краткое описание
// Details: пояснение для отладки
// Fields: ошибки валидации по полям
type BaseError struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Details   string       `json:"details,omitempty"`
	Fields    []FieldError `json:"fields,omitempty"`
	Retryable bool         `json:"retryable,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
}

func NewValidationError(msg string, fields []FieldError) BaseError {
	return BaseError{Code: "validation_error", Message: msg, Fields: fields}
}

// NewPreconditionError 409: состояние корзины или заказа не допускает операцию
func NewPreconditionError(msg string) BaseError {
	return BaseError{Code: "precondition_failed", Message: msg}
}

func NewConflictError(msg string) BaseError {
	return BaseError{Code: "conflict", Message: msg}
}

func NewUnauthorizedError(msg string) BaseError {
	return BaseError{Code: "unauthorized", Message: msg}
}

func NewForbiddenError(msg string) BaseError {
	return BaseError{Code: "forbidden", Message: msg}
}

func NewNotFoundError(msg string) BaseError {
	return BaseError{Code: "not_found", Message: msg}
}

// NewUpstreamError 502/503: внешний шлюз или банк недоступен, запрос можно повторить
func NewUpstreamError(msg string) BaseError {
	return BaseError{Code: "upstream_unavailable", Message: msg, Retryable: true}
}

func NewInternalError(details string) BaseError {
	return BaseError{Code: "internal_error", Message: "internal server error", Details: details}
}
