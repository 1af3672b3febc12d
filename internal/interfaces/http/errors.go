package http

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/garyjia/invoice-workflow/internal/domain/workflow"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

var kindStatus = map[workflow.Kind]int{
	workflow.KindValidation:          http.StatusBadRequest,
	workflow.KindInvalidTransition:   http.StatusBadRequest,
	workflow.KindPermissionDenied:    http.StatusForbidden,
	workflow.KindNotFound:            http.StatusNotFound,
	workflow.KindConcurrencyConflict: http.StatusConflict,
}

// classify maps an error to its HTTP status, kind and client-safe message
func classify(err error) (int, string, string) {
	if wfErr, ok := workflow.AsError(err); ok {
		status, known := kindStatus[wfErr.Kind]
		if !known {
			status = http.StatusInternalServerError
		}
		return status, string(wfErr.Kind), wfErr.Message
	}
	return http.StatusInternalServerError, "internal", "Internal error"
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	status, kind, msg := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"path", c.Request.URL.Path,
			"actor_user_id", actorFrom(c).ID,
			"error", err,
		)
	}
	c.JSON(status, Response{Success: false, Error: msg, Kind: kind})
}

func abortWithError(c *gin.Context, status int, kind, msg string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: msg, Kind: kind})
}

// useJSONFieldNames makes binding errors name fields as clients send them
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.Split(f.Tag.Get(tag), ",")[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
}

// bindingMessage describes a request binding failure. Missing or invalid
// fields are listed by name; anything else is a malformed body.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				msgs = append(msgs, fe.Field()+" is required")
			} else {
				msgs = append(msgs, fe.Field()+" is invalid")
			}
		}
		return strings.Join(msgs, "; ")
	}
	return "Malformed request body: " + err.Error()
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: bindingMessage(err), Kind: string(workflow.KindValidation)})
}
