package validation

import "github.com/gofiber/fiber/v2"

// Respond writes a 400 in the {"message","errors"} shape clients already parse.
func Respond(c *fiber.Ctx, errs map[string][]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  errs,
	})
}

// Field is a shortcut for a single-field validation failure.
func Field(c *fiber.Ctx, field, msg string) error {
	return Respond(c, map[string][]string{field: {msg}})
}
