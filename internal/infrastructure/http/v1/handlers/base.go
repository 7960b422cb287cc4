// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
	"costledger/internal/infrastructure/http/v1/dto"
	"costledger/internal/infrastructure/http/v1/middleware"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds the request body. An empty body binds the zero value.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		h.HandleError(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.HandleError(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// HandleError registers the error and aborts. middleware.ErrorHandler
// writes the response.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// CompanyID returns the company of the route.
func (h *BaseHandler) CompanyID(c *gin.Context) id.ID {
	return middleware.CompanyID(c)
}

// PathID parses a path parameter as an id.
func (h *BaseHandler) PathID(c *gin.Context, param string) (id.ID, bool) {
	v, err := dto.ParseID(param, c.Param(param))
	if err != nil {
		h.HandleError(c, err)
		return id.Nil(), false
	}
	return v, true
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}
