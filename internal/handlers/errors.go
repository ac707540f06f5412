package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/mulmoscript"
)

var registerTagNames sync.Once

// useJSONFieldNames makes validator report fields by their json names.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
}

// respondError writes err with the status its type maps to. Internal errors
// are logged and replaced by a generic message.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		c.Error(err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   string(apperrors.ErrorTypeInternal),
			Message: "internal server error",
		})
		return
	}

	var appErr *apperrors.AppError
	errors.As(err, &appErr)
	c.JSON(status, models.ErrorResponse{
		Error:   string(appErr.Type),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

// bindError turns gin binding failures into validation errors with field
// details.
func bindError(message string, err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make([]apperrors.FieldError, 0, len(validationErrs))
		for _, fe := range validationErrs {
			details = append(details, apperrors.FieldError{Field: fe.Field(), Message: describeTag(fe)})
		}
		return apperrors.NewValidationError(message, details...)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperrors.NewValidationError(message, apperrors.FieldError{
			Field:   typeErr.Field,
			Message: "must be a " + typeErr.Type.String(),
		})
	}

	if errors.Is(err, io.EOF) {
		return apperrors.NewValidationError(message, apperrors.FieldError{Message: "request body is required"})
	}
	return apperrors.NewValidationError(message, apperrors.FieldError{Message: err.Error()})
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must not be empty"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func parseID(c *gin.Context, param, entity string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid "+entity+" id",
			apperrors.FieldError{Field: param, Message: "must be a positive integer"})
	}
	return id, nil
}

// parseQueryID reads an optional numeric query parameter.
func parseQueryID(c *gin.Context, key, entity string) (*int64, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperrors.NewValidationError("invalid "+entity+" id",
			apperrors.FieldError{Field: key, Message: "must be a positive integer"})
	}
	return &id, nil
}

// validateScript validates an embedded script, reporting fields under the
// "script" prefix.
func validateScript(message string, raw json.RawMessage) (*models.Script, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, apperrors.NewValidationError(message, apperrors.FieldError{Field: "script", Message: "required"})
	}
	script, err := mulmoscript.Validate(raw)
	if err != nil {
		details := apperrors.DetailsOf(err)
		prefixed := make([]apperrors.FieldError, len(details))
		for i, d := range details {
			field := "script"
			if d.Field != "" {
				field += "." + d.Field
			}
			prefixed[i] = apperrors.FieldError{Field: field, Message: d.Message}
		}
		return nil, apperrors.NewValidationError(message, prefixed...)
	}
	return script, nil
}
