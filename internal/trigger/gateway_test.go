package trigger_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/operion/internal/domain"
	"github.com/dukex/operion/internal/engine"
	"github.com/dukex/operion/internal/store"
	"github.com/dukex/operion/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// awaitTerminal polls the store for a run to leave the running state. The
// webhook/app-event/chain admission paths return before traversal finishes
// (spec.md §6: 202, no wait for terminal status), so tests that need the
// final outcome poll for it instead of asserting it on the returned value.
func awaitTerminal(t *testing.T, st store.Store, runID string) *domain.WorkflowExecution {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		run, err := st.GetExecution(context.Background(), runID)
		require.NoError(t, err)

		if run.Status != domain.RunStatusRunning {
			return run
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("run %s did not reach a terminal status in time", runID)

	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

func seedWebhookWorkflow(t *testing.T, st store.Store, webhookID, secret string) *domain.Workflow {
	t.Helper()

	ctx := context.Background()

	wf, err := st.CreateWorkflow(ctx, &domain.Workflow{Name: "webhook-wf", IsActive: true})
	require.NoError(t, err)

	steps := []*domain.Step{
		{
			ID: "trg", WorkflowID: wf.ID, Kind: domain.StepKindWebhookTrigger,
			Config: map[string]any{"webhookId": webhookID, "secret": secret},
		},
		{
			ID: "transform", WorkflowID: wf.ID, Kind: domain.StepKindAITransform, Order: 1,
			Config: map[string]any{"input": "trg.payload"},
		},
	}
	edges := []*domain.Edge{
		{ID: "e1", WorkflowID: wf.ID, SourceID: "trg", TargetID: "transform"},
	}

	_, err = st.UpdateWorkflow(ctx, wf, steps, edges)
	require.NoError(t, err)

	return wf
}

// S5 webhook signed.
func TestGatewayWebhookValidSignatureStartsRun(t *testing.T) {
	mem := store.NewMemory()
	eng := engine.NewEngine(mem, nil, slog.Default())
	gw := trigger.NewGateway(mem, eng, slog.Default())

	seedWebhookWorkflow(t, mem, "w1", "k")

	body := []byte(`{"m":"hi"}`)

	run, err := gw.Webhook(context.Background(), "w1", body, sign("k", body), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, run.Status)

	final := awaitTerminal(t, mem, run.ID)
	assert.Equal(t, domain.RunStatusCompleted, final.Status)
	assert.Contains(t, final.Outputs["transform"], "[MOCK] Transformed:")
}

// Invariant 5: tampering with the body invalidates the signature and no run
// is created.
func TestGatewayWebhookTamperedBodyRejected(t *testing.T) {
	mem := store.NewMemory()
	eng := engine.NewEngine(mem, nil, slog.Default())
	gw := trigger.NewGateway(mem, eng, slog.Default())

	wf := seedWebhookWorkflow(t, mem, "w1", "k")

	body := []byte(`{"m":"hi"}`)
	goodSig := sign("k", body)

	tampered := []byte(`{"m":"hI"}`)

	_, err := gw.Webhook(context.Background(), "w1", tampered, goodSig, nil, nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrWebhookSignatureInvalid, domain.KindOf(err))

	execs, listErr := mem.ListExecutions(context.Background(), wf.ID)
	require.NoError(t, listErr)
	assert.Empty(t, execs)
}

func TestGatewayWebhookMissingSignatureRejected(t *testing.T) {
	mem := store.NewMemory()
	eng := engine.NewEngine(mem, nil, slog.Default())
	gw := trigger.NewGateway(mem, eng, slog.Default())

	seedWebhookWorkflow(t, mem, "w1", "k")

	_, err := gw.Webhook(context.Background(), "w1", []byte(`{}`), "", nil, nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrWebhookSignatureMissing, domain.KindOf(err))
}

func TestGatewayWebhookPayloadSchemaRejected(t *testing.T) {
	mem := store.NewMemory()
	eng := engine.NewEngine(mem, nil, slog.Default())
	gw := trigger.NewGateway(mem, eng, slog.Default())

	ctx := context.Background()

	wf, err := mem.CreateWorkflow(ctx, &domain.Workflow{Name: "schema-wf", IsActive: true})
	require.NoError(t, err)

	steps := []*domain.Step{
		{
			ID: "trg", WorkflowID: wf.ID, Kind: domain.StepKindWebhookTrigger,
			Config: map[string]any{
				"webhookId": "w3",
				"payloadSchema": map[string]any{
					"type":     "object",
					"required": []any{"amount"},
					"properties": map[string]any{
						"amount": map[string]any{"type": "number"},
					},
				},
			},
		},
	}

	_, err = mem.UpdateWorkflow(ctx, wf, steps, nil)
	require.NoError(t, err)

	_, err = gw.Webhook(ctx, "w3", []byte(`{"note":"missing amount"}`), "", nil, nil)
	require.Error(t, err)
	assert.Equal(t, domain.ErrTypeError, domain.KindOf(err))

	run, err := gw.Webhook(ctx, "w3", []byte(`{"amount": 12.5}`), "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, run.Status)
}

func TestGatewayChainRequiresCompletedSource(t *testing.T) {
	mem := store.NewMemory()
	eng := engine.NewEngine(mem, nil, slog.Default())
	gw := trigger.NewGateway(mem, eng, slog.Default())

	ctx := context.Background()

	source, err := mem.CreateWorkflow(ctx, &domain.Workflow{Name: "source", IsActive: true})
	require.NoError(t, err)

	target, err := mem.CreateWorkflow(ctx, &domain.Workflow{Name: "target", IsActive: true})
	require.NoError(t, err)

	_, err = gw.Chain(ctx, source.ID, target.ID)
	require.Error(t, err)
}
