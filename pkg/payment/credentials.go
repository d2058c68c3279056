package payment

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// Credentials is the decoded per-merchant credential blob for one provider.
type Credentials map[string]any

func (c Credentials) String(key string) string {
	if c == nil {
		return ""
	}
	switch v := c[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// CredentialResolver returns a merchant's stored credentials for a provider, or nil when none are stored.
type CredentialResolver interface {
	Credentials(ctx context.Context, merchantID, provider string) (Credentials, error)
}

// NoCredentials resolves nothing, so adapters fall back to platform defaults.
type NoCredentials struct{}

func (NoCredentials) Credentials(context.Context, string, string) (Credentials, error) {
	return nil, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
