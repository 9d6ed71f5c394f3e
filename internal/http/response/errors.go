package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/memstream-backend/internal/platform/apierr"
)

// FromError maps an error to the wire envelope, honoring *apierr.Error when
// the handler (or anything below it) classified the failure.
func FromError(c *gin.Context, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		status := apiErr.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := apiErr.Code
		if code == "" {
			code = apierr.CodeSystemError
		}
		Error(c, status, code, err)
		return
	}
	Error(c, http.StatusInternalServerError, apierr.CodeSystemError, err)
}
