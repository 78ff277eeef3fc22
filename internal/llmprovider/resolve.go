package llmprovider

import (
	"context"
	"os"

	"github.com/dukex/operion/internal/store"
)

const anthropicEnvVar = "ANTHROPIC_API_KEY"
const anthropicCredentialType = "anthropic"

// Resolve implements the credential resolution order of spec.md §4.5: (1)
// environment-configured key, (2) a credential record of type "anthropic"
// in Store, (3) mock mode.
func Resolve(ctx context.Context, st store.Store) Provider {
	if key := os.Getenv(anthropicEnvVar); key != "" {
		return NewAnthropic(key)
	}

	if st != nil {
		if cred, err := st.GetCredentialByType(ctx, anthropicCredentialType); err == nil && cred.Value != "" {
			return NewAnthropic(cred.Value)
		}
	}

	return NewMock()
}
