package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/pathweaver/pathweaver/internal/pkg/errcode"
)

type serviceErr struct {
	code uint32
	msg  string
}

func (e serviceErr) Error() string {
	return e.msg
}

func (e serviceErr) Code() uint32 {
	return e.code
}

// httpStatusOf maps engine error codes onto wire statuses so callers can
// branch on the status line without parsing the envelope.
func httpStatusOf(code int) int {
	switch code {
	case errcode.ErrUnauthorized:
		return http.StatusUnauthorized
	case errcode.ErrForbidden:
		return http.StatusForbidden
	case errcode.ErrNotFound, errcode.ErrEmptyResult:
		return http.StatusNotFound
	case errcode.ErrInvalid:
		return http.StatusBadRequest
	case errcode.ErrConflict:
		return http.StatusConflict
	case errcode.ErrTooMany:
		return http.StatusTooManyRequests
	case errcode.ErrCircuitOpen, errcode.ErrAIUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, httpStatusOf(code), serviceErr{code: uint32(code), msg: message})
}
