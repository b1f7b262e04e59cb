package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-portal/internal/handler"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

// ErrorHandler renders the last error a handler attached as a Response
// envelope. A 401 from the clinic API carries the /login redirect only
// once per session; later requests racing the same logout get the plain
// error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := http.StatusInternalServerError
		redirect := ""
		if appErr, ok := apperrors.As(err); ok {
			status = appErr.StatusCode()
			redirect = appErr.Redirect
			if appErr.Code == apperrors.ErrUnauthorized {
				redirect = ""
				if sess := handler.CurrentSession(c); sess != nil {
					redirect, _ = sess.TakeRedirect()
				}
			}
		}

		c.JSON(status, handler.NewRedirectResponse(apperrors.UserMessage(err), redirect))
	}
}
