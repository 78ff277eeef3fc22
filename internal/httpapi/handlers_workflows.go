package httpapi

import (
	"github.com/dukex/operion/internal/domain"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

func (s *Server) listWorkflows(c fiber.Ctx) error {
	workflows, err := s.store.ListWorkflows(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(workflows)
}

func (s *Server) getWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	graph, err := s.store.GetWorkflow(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(graph)
}

func (s *Server) createWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := s.store.CreateWorkflow(c.Context(), &domain.Workflow{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// updateWorkflow applies partial field updates and, when steps/edges are
// present, fully replaces the graph — edges cleared before steps, atomically
// (spec.md §6, implemented by Store.UpdateWorkflow).
func (s *Server) updateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	graph, err := s.store.GetWorkflow(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	workflow := graph.Workflow
	if req.Name != nil {
		workflow.Name = *req.Name
	}

	if req.Description != nil {
		workflow.Description = *req.Description
	}

	if req.IsActive != nil {
		workflow.IsActive = *req.IsActive
	}

	var steps []*domain.Step
	if req.Steps != nil {
		steps = make([]*domain.Step, 0, len(req.Steps))
		for _, dto := range req.Steps {
			if dto.ID == "" {
				dto.ID = uuid.New().String()
			}

			steps = append(steps, dto.toDomain(id))
		}
	}

	var edges []*domain.Edge
	if req.Edges != nil {
		edges = make([]*domain.Edge, 0, len(req.Edges))
		for _, dto := range req.Edges {
			if dto.ID == "" {
				dto.ID = uuid.New().String()
			}

			edges = append(edges, dto.toDomain(id))
		}
	}

	updated, err := s.store.UpdateWorkflow(c.Context(), workflow, steps, edges)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(updated)
}

func (s *Server) deleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	if err := s.store.DeleteWorkflow(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// executeWorkflow starts a manual run synchronously (spec.md §6: 200, run).
func (s *Server) executeWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	run, err := s.gateway.Manual(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(run)
}

func (s *Server) chainWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	var req ChainRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := s.gateway.Chain(c.Context(), id, req.TargetWorkflowID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"executionId": run.ID})
}
