package httpapi

import "github.com/gofiber/fiber/v3"

func (s *Server) getExecution(c fiber.Ctx) error {
	id := c.Params("id")

	run, err := s.store.GetExecution(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(run)
}
