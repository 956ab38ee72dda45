package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/models"
)

type errorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Kind      string `json:"kind"`
	Suggested string `json:"suggested,omitempty"`
}

// statusOf maps the engine's error taxonomy onto HTTP.
func statusOf(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var wrongType *models.WrongTransferTypeError
	var validation *models.ValidationError
	var immutable *models.ImmutableFieldError
	var reference *models.ReferenceError
	var persistence *models.PersistenceError
	var violation *models.InvariantViolation

	switch {
	case errors.As(err, &wrongType):
		body.Kind = "WrongTransferType"
		body.Field = "to_account_id"
		body.Suggested = string(wrongType.Suggested)
		return http.StatusBadRequest, body
	case errors.As(err, &validation):
		body.Kind = "ValidationError"
		body.Field = validation.Field
		return http.StatusBadRequest, body
	case errors.As(err, &immutable):
		body.Kind = "ImmutableFieldError"
		body.Field = immutable.Field
		return http.StatusConflict, body
	case errors.As(err, &reference):
		body.Kind = "ReferenceError"
		return http.StatusNotFound, body
	case errors.As(err, &persistence):
		body.Kind = "PersistenceError"
		return http.StatusBadGateway, body
	case errors.As(err, &violation):
		body.Kind = "InvariantViolation"
		return http.StatusConflict, body
	default:
		body.Kind = "InternalError"
		return http.StatusInternalServerError, body
	}
}

// abortWithError writes the mapped error and records it for the error logger.
func abortWithError(c *gin.Context, err error) {
	status, body := statusOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func abortWithBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "invalid request: " + err.Error(), Kind: "ValidationError"})
}
