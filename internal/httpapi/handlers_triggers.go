package httpapi

import "github.com/gofiber/fiber/v3"

// webhookHeaders and webhookQueryKeys are the request fields a
// webhook_trigger step's downstream template resolution can reference
// (spec.md §4.7's TriggerEnvelope.Headers/Query). Only these are surfaced
// rather than the full raw header/query set, matching the trigger
// envelope's flat shape.
var webhookHeaders = []string{"Content-Type", "User-Agent", "X-Webhook-Signature"}

// webhookQueryKeys are the query parameters commonly used by webhook
// senders to disambiguate a delivery (source tag, event name, delivery
// token) — surfaced to the trigger envelope for template resolution.
var webhookQueryKeys = []string{"source", "event", "token"}

// postWebhook implements spec.md §6: 202 with an execution id immediately,
// or 401/404 when the signature or the target workflow can't be resolved.
func (s *Server) postWebhook(c fiber.Ctx) error {
	webhookID := c.Params("webhookId")

	headers := make(map[string]string, len(webhookHeaders))
	for _, h := range webhookHeaders {
		if v := c.Get(h); v != "" {
			headers[h] = v
		}
	}

	// Only the fixed webhookQueryKeys are surfaced, whatever the
	// webhook_trigger step's config says, following the teacher's own
	// c.Query(name)-by-name style
	// (pkg/web/handlers.go) rather than an unbounded raw query dump.
	query := make(map[string]string, len(webhookQueryKeys))
	for _, k := range webhookQueryKeys {
		if v := c.Query(k); v != "" {
			query[k] = v
		}
	}

	run, err := s.gateway.Webhook(c.Context(), webhookID, c.Body(), c.Get("X-Webhook-Signature"), headers, query)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"executionId": run.ID})
}

// postEvent implements spec.md §6: fans an application event out to every
// matching active workflow, returning 202 with the started execution ids,
// or 404 when no workflow matched eventType.
func (s *Server) postEvent(c fiber.Ctx) error {
	var req EventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	runs, err := s.gateway.AppEvent(c.Context(), req.EventType, req.Payload)
	if err != nil {
		return handleEngineError(c, err)
	}

	if len(runs) == 0 {
		return notFound(c, "no active workflow has an app_event_trigger for eventType "+req.EventType)
	}

	ids := make([]string, len(runs))
	for i, run := range runs {
		ids[i] = run.ID
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"executionIds": ids})
}
