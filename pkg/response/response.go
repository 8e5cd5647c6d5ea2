package response

import (
	"net/http"

	"ignitia/pkg/apperr"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const CodeSuccess = 0

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    apperr.Code `json:"kind,omitempty"`
	Details any         `json:"details,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Unauthorized(c *gin.Context, message string) {
	Fail(c, apperr.New(apperr.CodeUnauthorized, message))
}

// Fail renders err as an error envelope. Typed errors keep their message;
// anything else is reported as an internal error without leaking its text.
func Fail(c *gin.Context, err error) {
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, apperr.MetadataFor(apperr.CodeInternal).PublicMessage)
	}
	meta := apperr.MetadataFor(typed.Code())

	message := typed.Message()
	if typed.Code() == apperr.CodeInternal || typed.Code() == apperr.CodeStorageUnavailable {
		message = meta.PublicMessage
	}
	if meta.HTTPStatus >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("kind", string(typed.Code())).Msg("request failed")
	}

	var details any
	if d := typed.Details(); len(d) > 0 {
		details = d
	}

	c.AbortWithStatusJSON(meta.HTTPStatus, Response{
		Code:    meta.BizCode,
		Message: message,
		Kind:    typed.Code(),
		Details: details,
	})
}
