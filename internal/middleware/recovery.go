package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"go-admin-portal/internal/service"
	"go-admin-portal/pkg/apierror"
)

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			attrs := []any{"error", fmt.Sprintf("%v", recovered), "stack", string(debug.Stack())}
			if info, ok := service.RequestInfoFromContext(r.Context()); ok {
				attrs = append(attrs, "request_id", info.RequestID)
			}
			slog.Error("panic recovered", attrs...)

			apierror.Write(w, apierror.New("INTERNAL_ERROR", "Unexpected server error", "", http.StatusInternalServerError))
		}()

		next.ServeHTTP(w, r)
	})
}
