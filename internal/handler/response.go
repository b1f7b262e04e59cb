package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/session"
)

// Response is the envelope of every portal API answer. Redirect tells the
// front end where to navigate, after a forced logout or a navigation error.
type Response struct {
	Status   string      `json:"status"`
	Message  string      `json:"message,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Redirect string      `json:"redirect,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

func NewRedirectResponse(message, redirect string) *Response {
	return &Response{
		Status:   "error",
		Message:  message,
		Redirect: redirect,
	}
}

// ContextSession is the gin context key of the authenticated session.
const ContextSession = "portal_session"

// CurrentSession returns the session the auth middleware attached, or nil.
func CurrentSession(c *gin.Context) *session.Session {
	v, ok := c.Get(ContextSession)
	if !ok {
		return nil
	}
	sess, _ := v.(*session.Session)
	return sess
}

// Abort hands err to the error middleware, which renders it.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
