package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorStore     = "REQUE_STORE_ERROR"
	ErrorForward   = "REQUE_FORWARD_ERROR"
	ErrorConfig    = "REQUE_CONFIG_ERROR"
	ErrorBadInput  = "REQUE_BAD_INPUT"
	ErrorNotFound  = "REQUE_NOT_FOUND"
	ErrorInternal  = "REQUE_INTERNAL_ERROR"
	ErrorCancelled = "REQUE_CANCELLED"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

// StoreError wraps a persistence failure.
func StoreError(source error, message string, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryOperation, message, http.StatusServiceUnavailable, ErrorStore, metadata)
}

// ForwardError wraps a delivery failure: transport errors and non-200 replies.
func ForwardError(source error, message string, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryExternal, message, http.StatusBadGateway, ErrorForward, metadata)
}

func configError(field string, message string) error {
	return goerrors.NewValidation("core: invalid configuration", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorConfig).
		WithSeverity(goerrors.SeverityCritical)
}

// ConfigError wraps a configuration load failure; it is fatal at startup only.
func ConfigError(source error, message string) error {
	return wrapError(source, goerrors.CategoryValidation, message, http.StatusBadRequest, ErrorConfig, nil)
}

func IsStoreError(err error) bool {
	return hasTextCode(err, ErrorStore)
}

func IsForwardError(err error) bool {
	return hasTextCode(err, ErrorForward)
}

func IsConfigError(err error) bool {
	return hasTextCode(err, ErrorConfig)
}

func hasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func wrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithCode(code).WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "context canceled"), strings.Contains(msg, "deadline exceeded"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryOperation).WithTextCode(ErrorCancelled))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ErrorBadInput
	case goerrors.CategoryValidation:
		return ErrorConfig
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryExternal:
		return ErrorForward
	case goerrors.CategoryOperation:
		return ErrorStore
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryOperation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
