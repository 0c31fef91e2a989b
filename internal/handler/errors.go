package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/franchise-orders/internal/domain/auth"
	"github.com/xenking/franchise-orders/internal/failure"
)

const kindMalformed = "malformed"

// malformedError is a request that could not be decoded.
type malformedError struct {
	msg string
}

func (e *malformedError) Error() string { return e.msg }

func malformed(format string, args ...any) error {
	return &malformedError{msg: fmt.Sprintf(format, args...)}
}

// classify maps err to an HTTP status, kind and client-facing message.
// Internal errors never leak their text.
func classify(err error) (status int, kind, msg string) {
	var me *malformedError
	switch {
	case errors.As(err, &me):
		return http.StatusBadRequest, kindMalformed, me.msg
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", auth.ErrUnauthorized.Error()
	}

	switch k := failure.KindOf(err); k {
	case failure.KindNotFound:
		return http.StatusNotFound, string(k), err.Error()
	case failure.KindValidation:
		return http.StatusUnprocessableEntity, string(k), err.Error()
	case failure.KindConflict:
		return http.StatusConflict, string(k), err.Error()
	case failure.KindTransaction:
		return http.StatusInternalServerError, string(k), failure.ErrTransaction.Error()
	default:
		return http.StatusInternalServerError, string(failure.KindInternal), "internal error"
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, kind, msg := classify(err)
	if kind == string(failure.KindInternal) {
		zctx.From(ctx).Error("Unclassified error", zap.Error(err))
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(kind) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
