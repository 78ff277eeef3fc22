package httpapi

import (
	"github.com/dukex/operion/internal/domain"
	"github.com/dukex/operion/internal/store"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// kindStatus maps a spec.md §7 error kind to the HTTP status a caller sees.
// Kinds not listed fall back to 500 (an engine-internal failure the caller
// cannot act on).
var kindStatus = map[domain.ErrorKind]int{
	domain.ErrWorkflowNotFound:        fiber.StatusNotFound,
	domain.ErrStepNotFound:            fiber.StatusNotFound,
	domain.ErrValidationError:         fiber.StatusBadRequest,
	domain.ErrWebhookSignatureMissing: fiber.StatusUnauthorized,
	domain.ErrWebhookSignatureInvalid: fiber.StatusUnauthorized,
	domain.ErrCycleDetected:           fiber.StatusUnprocessableEntity,
	domain.ErrTypeError:               fiber.StatusUnprocessableEntity,
	domain.ErrSandboxError:            fiber.StatusUnprocessableEntity,
	domain.ErrSandboxTimeout:          fiber.StatusUnprocessableEntity,
	domain.ErrLLMError:                fiber.StatusBadGateway,
	domain.ErrCancelled:               fiber.StatusConflict,
	domain.ErrDeadlineExceeded:        fiber.StatusGatewayTimeout,
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

// handleEngineError maps an *domain.EngineError (or a store.OpError) raised
// by a request handler to an RFC7807 problem+json body, using the stable
// error kind names of spec.md §7 as the problem `type`.
func handleEngineError(c fiber.Ctx, err error) error {
	if store.IsWorkflowNotFound(err) || store.IsExecutionNotFound(err) || store.IsCredentialNotFound(err) {
		return notFound(c, err.Error())
	}

	kind := domain.KindOf(err)
	if kind == "" {
		p := problems.NewStatusProblem(fiber.StatusInternalServerError).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(p)
	}

	status, ok := kindStatus[kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}

	return problem(c, status, string(kind), err.Error())
}
