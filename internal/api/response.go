package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Mender/internal/audit"
	"github.com/shaiso/Mender/internal/repo"
	"github.com/shaiso/Mender/internal/telemetry"
)

// ErrorCode — машиночитаемый код ошибки в ответе API.
type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// Status возвращает HTTP статус для кода ошибки.
func (c ErrorCode) Status() int {
	switch c {
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidState:
		return http.StatusUnprocessableEntity
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Конверты ответов: {"data": ...} или {"error": {"code", "message"}}.
type (
	ErrorResponse struct {
		Error ErrorDetail `json:"error"`
	}

	ErrorDetail struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
	}

	DataResponse struct {
		Data any `json:"data"`
	}

	ListResponse struct {
		Data  any `json:"data"`
		Total int `json:"total,omitempty"`
	}
)

// JSON пишет v с заданным статусом.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Accepted — запрос поставлен в очередь (202).
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, DataResponse{Data: data})
}

func List(w http.ResponseWriter, items any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: items, Total: total})
}

// Fail пишет ошибку со статусом, соответствующим коду.
func Fail(w http.ResponseWriter, code ErrorCode, message string) {
	JSON(w, code.Status(), ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func BadRequest(w http.ResponseWriter, message string) { Fail(w, ErrCodeBadRequest, message) }

func NotFound(w http.ResponseWriter, message string) { Fail(w, ErrCodeNotFound, message) }

func InvalidState(w http.ResponseWriter, message string) { Fail(w, ErrCodeInvalidState, message) }

func Unavailable(w http.ResponseWriter, message string) { Fail(w, ErrCodeUnavailable, message) }

// InternalError логирует err логгером запроса и отвечает 500 без деталей.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	telemetry.FromContext(r.Context()).Error("internal error", "error", err)
	Fail(w, ErrCodeInternalError, "internal server error")
}

// isNotFound распознаёт отсутствие записи в любом из хранилищ.
func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, audit.ErrNotFound)
}

// HandleRepoError отвечает на ошибку хранилища: 404 для отсутствующей
// записи, иначе 500. Возвращает false, если err == nil.
func HandleRepoError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) bool {
	switch {
	case err == nil:
		return false
	case isNotFound(err):
		NotFound(w, notFoundMsg)
	default:
		InternalError(w, r, err)
	}
	return true
}
