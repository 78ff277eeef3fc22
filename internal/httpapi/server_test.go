package httpapi_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/operion/internal/domain"
	"github.com/dukex/operion/internal/engine"
	"github.com/dukex/operion/internal/httpapi"
	"github.com/dukex/operion/internal/store"
	"github.com/dukex/operion/internal/trigger"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, store.Store) {
	t.Helper()

	mem := store.NewMemory()
	eng := engine.NewEngine(mem, nil, slog.Default())
	gw := trigger.NewGateway(mem, eng, slog.Default())
	srv := httpapi.NewServer(mem, eng, gw, slog.Default())

	return srv.App(), mem
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func TestServerRootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerWorkflowCRUD(t *testing.T) {
	app, _ := setupTestApp(t)

	created := doJSON(t, app, http.MethodPost, "/api/workflows", httpapi.CreateWorkflowRequest{
		Name:        "demo",
		Description: "a demo workflow",
	})
	defer created.Body.Close()
	require.Equal(t, http.StatusCreated, created.StatusCode)

	var wf domain.Workflow
	require.NoError(t, json.NewDecoder(created.Body).Decode(&wf))
	assert.Equal(t, "demo", wf.Name)

	got := doJSON(t, app, http.MethodGet, "/api/workflows/"+wf.ID, nil)
	defer got.Body.Close()
	assert.Equal(t, http.StatusOK, got.StatusCode)

	deleted := doJSON(t, app, http.MethodDelete, "/api/workflows/"+wf.ID, nil)
	defer deleted.Body.Close()
	assert.Equal(t, http.StatusNoContent, deleted.StatusCode)

	missing := doJSON(t, app, http.MethodGet, "/api/workflows/"+wf.ID, nil)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServerExecuteWorkflowSynchronous(t *testing.T) {
	app, mem := setupTestApp(t)

	wf, err := mem.CreateWorkflow(context.Background(), &domain.Workflow{Name: "run-me", IsActive: true})
	require.NoError(t, err)

	steps := []*domain.Step{
		{ID: "trg", WorkflowID: wf.ID, Kind: domain.StepKindManualTrigger},
		{ID: "code", WorkflowID: wf.ID, Kind: domain.StepKindCode, Order: 1, Config: map[string]any{"code": "1 + 1"}},
	}
	edges := []*domain.Edge{{ID: "e1", WorkflowID: wf.ID, SourceID: "trg", TargetID: "code"}}

	_, err = mem.UpdateWorkflow(context.Background(), wf, steps, edges)
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodPost, "/api/workflows/"+wf.ID+"/execute", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run domain.WorkflowExecution
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.InEpsilon(t, float64(2), run.Outputs["code"], 0)
}

func TestServerWebhookAccepted(t *testing.T) {
	app, mem := setupTestApp(t)

	wf, err := mem.CreateWorkflow(context.Background(), &domain.Workflow{Name: "webhook-wf", IsActive: true})
	require.NoError(t, err)

	steps := []*domain.Step{
		{
			ID: "trg", WorkflowID: wf.ID, Kind: domain.StepKindWebhookTrigger,
			Config: map[string]any{"webhookId": "w1", "secret": "shh"},
		},
		{ID: "code", WorkflowID: wf.ID, Kind: domain.StepKindCode, Order: 1, Config: map[string]any{"code": "1"}},
	}
	edges := []*domain.Edge{{ID: "e1", WorkflowID: wf.ID, SourceID: "trg", TargetID: "code"}}

	_, err = mem.UpdateWorkflow(context.Background(), wf, steps, edges)
	require.NoError(t, err)

	body := []byte(`{"m":"hi"}`)
	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/w1", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", sig)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.NotEmpty(t, payload["executionId"])
}

func TestServerWebhookMissingSignature(t *testing.T) {
	app, mem := setupTestApp(t)

	wf, err := mem.CreateWorkflow(context.Background(), &domain.Workflow{Name: "webhook-wf", IsActive: true})
	require.NoError(t, err)

	steps := []*domain.Step{
		{
			ID: "trg", WorkflowID: wf.ID, Kind: domain.StepKindWebhookTrigger,
			Config: map[string]any{"webhookId": "w2", "secret": "shh"},
		},
	}

	_, err = mem.UpdateWorkflow(context.Background(), wf, steps, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/w2", bytes.NewReader([]byte(`{}`)))

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServerEventNoMatchIs404(t *testing.T) {
	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/events", httpapi.EventRequest{EventType: "nothing.matches"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerCredentialCRUD(t *testing.T) {
	app, _ := setupTestApp(t)

	created := doJSON(t, app, http.MethodPost, "/api/credentials", httpapi.CredentialRequest{
		Type: "anthropic", Name: "prod", Value: "sk-test",
	})
	defer created.Body.Close()
	require.Equal(t, http.StatusCreated, created.StatusCode)

	var cred store.Credential
	require.NoError(t, json.NewDecoder(created.Body).Decode(&cred))

	deleted := doJSON(t, app, http.MethodDelete, "/api/credentials/"+cred.ID, nil)
	defer deleted.Body.Close()
	assert.Equal(t, http.StatusNoContent, deleted.StatusCode)
}

