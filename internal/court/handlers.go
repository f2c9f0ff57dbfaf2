package court

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/section1983-backend/pkg/metrics"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

type Handler struct {
	table   *Table
	metrics *metrics.Metrics
}

func NewHandler(table *Table, m *metrics.Metrics) *Handler {
	if table == nil {
		table = Default()
	}
	return &Handler{table: table, metrics: m}
}

// Resolve runs a lookup and records it.
func (h *Handler) Resolve(city, state string) Result {
	res := h.table.Lookup(city, state)
	h.metrics.IncCourtLookup(string(res.Confidence))
	return res
}

// @Summary      Look up federal district court
// @Description  Map an incident city and state to a federal district with a confidence level
// @Tags         court
// @Produce      json
// @Param        city   query  string  false  "City"
// @Param        state  query  string  true   "Two-letter state code"
// @Success      200  {object}  Result
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /court/lookup [get]
func (h *Handler) Lookup(c *fiber.Ctx) error {
	state := strings.TrimSpace(c.Query("state"))
	if state == "" {
		return validation.Field(c, "state", "This field is required")
	}
	return c.JSON(h.Resolve(c.Query("city"), state))
}

// @Summary      List districts
// @Tags         court
// @Produce      json
// @Success      200  {array}  StateInfo
// @Router       /court/states [get]
func (h *Handler) States(c *fiber.Ctx) error {
	return c.JSON(h.table.States())
}

// @Summary      Districts for one state
// @Tags         court
// @Produce      json
// @Param        code  path  string  true  "State code"
// @Success      200  {object}  StateInfo
// @Failure      404  {object}  models.ErrorResponse
// @Router       /court/states/{code} [get]
func (h *Handler) State(c *fiber.Ctx) error {
	st, ok := h.table.State(c.Params("code"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown state")
	}
	return c.JSON(st)
}
