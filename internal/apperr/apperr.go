package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation              Kind = "validation"
	KindUnauthorized            Kind = "unauthorized"
	KindForbidden               Kind = "forbidden"
	KindQuotaExceeded           Kind = "quota_exceeded"
	KindNotFound                Kind = "not_found"
	KindGenerationTimeout       Kind = "generation_timeout"
	KindGenerationRateLimited   Kind = "generation_rate_limited"
	KindGenerationMisconfigured Kind = "generation_misconfigured"
	KindPersistence             Kind = "persistence"
	KindUnknown                 Kind = "unknown"
)

type policy struct {
	status     int
	message    string
	retryable  bool
	retryAfter int // seconds
}

var policies = map[Kind]policy{
	KindValidation:              {http.StatusBadRequest, "入力内容に誤りがあります。", false, 0},
	KindUnauthorized:            {http.StatusUnauthorized, "認証されていません。", false, 0},
	KindForbidden:               {http.StatusForbidden, "この操作を行う権限がありません。", false, 0},
	KindQuotaExceeded:           {http.StatusForbidden, "今月の口コミ生成上限に達しました。", false, 0},
	KindNotFound:                {http.StatusNotFound, "対象のデータが見つかりません。", false, 0},
	KindGenerationTimeout:       {http.StatusGatewayTimeout, "AIの応答に時間がかかりすぎています。しばらく待ってから再度お試しください。", true, 30},
	KindGenerationRateLimited:   {http.StatusTooManyRequests, "AI生成の利用制限に達しています。しばらく待ってから再度お試しください。", true, 60},
	KindGenerationMisconfigured: {http.StatusBadGateway, "AI生成サービスの設定に問題があります。管理者にお問い合わせください。", false, 0},
	KindPersistence:             {http.StatusInternalServerError, "データの保存中にエラーが発生しました。", true, 5},
	KindUnknown:                 {http.StatusInternalServerError, "口コミの生成中にエラーが発生しました。", true, 5},
}

// Error is the typed error surfaced by services.
type Error struct {
	Kind    Kind
	Message string // internal detail, never shown to end users
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so errors.Is(err, apperr.NotFound("")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error   { return New(KindValidation, message, nil) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message, nil) }
func Forbidden(message string) *Error    { return New(KindForbidden, message, nil) }
func NotFound(message string) *Error     { return New(KindNotFound, message, nil) }
func QuotaExceeded(message string) *Error {
	return New(KindQuotaExceeded, message, nil)
}
func Persistence(message string, err error) *Error {
	return New(KindPersistence, message, err)
}

// KindOf returns the kind of err, KindUnknown for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps a kind to its HTTP status code.
func (k Kind) HTTPStatus() int {
	if p, ok := policies[k]; ok {
		return p.status
	}
	return http.StatusInternalServerError
}

// UserMessage is the localized, user-safe message for a kind.
func (k Kind) UserMessage() string {
	if p, ok := policies[k]; ok {
		return p.message
	}
	return policies[KindUnknown].message
}

// Retryable reports whether the caller should suggest retrying.
func (k Kind) Retryable() bool {
	return policies[k].retryable
}

// RetryAfter is the suggested delay in seconds, 0 when not retryable.
func (k Kind) RetryAfter() int {
	return policies[k].retryAfter
}
