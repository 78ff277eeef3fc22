package httpapi

import (
	"github.com/dukex/operion/internal/store"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

func (s *Server) listCredentials(c fiber.Ctx) error {
	creds, err := s.store.ListCredentials(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(creds)
}

func (s *Server) createCredential(c fiber.Ctx) error {
	var req CredentialRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := s.store.CreateCredential(c.Context(), &store.Credential{
		ID:    uuid.New().String(),
		Type:  req.Type,
		Name:  req.Name,
		Value: req.Value,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (s *Server) deleteCredential(c fiber.Ctx) error {
	id := c.Params("id")

	if err := s.store.DeleteCredential(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
