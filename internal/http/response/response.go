package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Envelope is the success body: `status` is "ok", `result` carries the
// operation payload.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// ErrorEnvelope is the failure body shared by every endpoint.
type ErrorEnvelope struct {
	Status    string `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

func OK(c *gin.Context, message string, result any) {
	c.JSON(http.StatusOK, Envelope{Status: "ok", Message: message, Result: result})
}

func Error(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Status:    "failed",
		Code:      code,
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	})
}
