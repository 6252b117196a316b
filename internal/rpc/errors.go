package rpc

import (
	"errors"
	"strconv"

	"connectrpc.com/connect"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
)

// ErrorKindHeader carries the apperr kind of a failed call.
const ErrorKindHeader = "Error-Kind"

var codes = map[apperr.Kind]connect.Code{
	apperr.KindValidation:              connect.CodeInvalidArgument,
	apperr.KindUnauthorized:            connect.CodeUnauthenticated,
	apperr.KindForbidden:               connect.CodePermissionDenied,
	apperr.KindQuotaExceeded:           connect.CodeResourceExhausted,
	apperr.KindNotFound:                connect.CodeNotFound,
	apperr.KindGenerationTimeout:       connect.CodeDeadlineExceeded,
	apperr.KindGenerationRateLimited:   connect.CodeUnavailable,
	apperr.KindGenerationMisconfigured: connect.CodeFailedPrecondition,
	apperr.KindPersistence:             connect.CodeInternal,
	apperr.KindUnknown:                 connect.CodeUnknown,
}

// CodeFor maps an error kind to its connect code.
func CodeFor(kind apperr.Kind) connect.Code {
	if c, ok := codes[kind]; ok {
		return c
	}
	return connect.CodeUnknown
}

// toConnectError hides internal detail behind the kind's user message.
func toConnectError(err error) *connect.Error {
	kind := apperr.KindOf(err)
	cerr := connect.NewError(CodeFor(kind), errors.New(kind.UserMessage()))
	cerr.Meta().Set(ErrorKindHeader, string(kind))
	if s := kind.RetryAfter(); s > 0 {
		cerr.Meta().Set("Retry-After", strconv.Itoa(s))
	}
	return cerr
}

// KindOf recovers the apperr kind from a connect client error.
func KindOf(err error) apperr.Kind {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return apperr.KindUnknown
	}
	if k := cerr.Meta().Get(ErrorKindHeader); k != "" {
		return apperr.Kind(k)
	}
	for kind, code := range codes {
		if code == cerr.Code() {
			return kind
		}
	}
	return apperr.KindUnknown
}
