// Package response defines the JSON envelope every API endpoint speaks.
// Gateway webhook endpoints are the one exception: they answer in the
// rail's own acknowledgement format.
package response

import "github.com/gofiber/fiber/v2"

// Response is the common API envelope. Success carries Message and
// Data; failure carries Error, plus Fields when validation produced
// per-field detail.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Fields  interface{} `json:"fields,omitempty"`
}

func ok(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(Response{Success: true, Message: message, Data: data})
}

// Error sends a failure envelope with the given status code.
func Error(c *fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(Response{Success: false, Error: message})
}

// Success sends a 200 with the payload.
func Success(c *fiber.Ctx, message string, data interface{}) error {
	return ok(c, fiber.StatusOK, message, data)
}

// Created sends a 201 for a newly stored resource.
func Created(c *fiber.Ctx, message string, data interface{}) error {
	return ok(c, fiber.StatusCreated, message, data)
}

// ValidationError sends a 422 carrying per-field rule failures.
func ValidationError(c *fiber.Ctx, fields interface{}) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(Response{
		Success: false,
		Error:   "validation failed",
		Fields:  fields,
	})
}

// BadRequest sends a 400.
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

// Unauthorized sends a 401.
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, message)
}

// Forbidden sends a 403.
func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, message)
}

// NotFound sends a 404.
func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, message)
}

// Conflict sends a 409, used for duplicate references and double
// enrollment.
func Conflict(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusConflict, message)
}

// InternalServerError sends a 500.
func InternalServerError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, message)
}
