package protocol

import "context"

// CredentialResolver resolves a credential alias to its secret value. It is
// injected at run start; resolved secrets are never cached across nodes and
// never persisted by the orchestrator.
type CredentialResolver interface {
	Resolve(ctx context.Context, alias string) (string, error)
}

// CredentialResolverFunc adapts a function to the CredentialResolver interface.
type CredentialResolverFunc func(ctx context.Context, alias string) (string, error)

func (f CredentialResolverFunc) Resolve(ctx context.Context, alias string) (string, error) {
	return f(ctx, alias)
}
