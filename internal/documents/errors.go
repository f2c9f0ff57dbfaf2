package documents

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HTTPError maps service errors onto the response codes clients expect.
func HTTPError(err error) error {
	var fe *fiber.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, ErrNotFound):
		return fiber.ErrNotFound
	case errors.Is(err, ErrProfileIncomplete):
		return fiber.NewError(fiber.StatusConflict, "complete your profile before starting a document")
	case errors.Is(err, ErrConsentsRequired):
		return fiber.NewError(fiber.StatusConflict, "accept the terms of service and privacy policy first")
	case errors.Is(err, ErrExpired):
		return fiber.NewError(fiber.StatusForbidden, "this draft has expired; purchase the document to continue")
	case errors.Is(err, ErrFinalized):
		return fiber.NewError(fiber.StatusForbidden, "this document is finalized and can no longer be edited")
	case errors.Is(err, ErrNotEditable):
		return fiber.NewError(fiber.StatusForbidden, "this document can no longer be edited")
	case errors.Is(err, ErrPaymentRequired):
		return fiber.NewError(fiber.StatusPaymentRequired, "purchase this document first")
	case errors.Is(err, ErrNotDraft):
		return fiber.NewError(fiber.StatusConflict, "only drafts can be deleted")
	default:
		return fiber.ErrInternalServerError
	}
}

// ParamID reads a uuid path parameter. A malformed id is a 404.
func ParamID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.ErrNotFound
	}
	return id, nil
}
