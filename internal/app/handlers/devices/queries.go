package devices

import (
	"context"

	appdevices "marketchat/internal/app/devices"
	"marketchat/internal/app/queries"
)

const tokensKey = "devices.tokens"

// TokensQuery lists the push tokens registered for one user.
type TokensQuery struct {
	UserID string
}

func (TokensQuery) Key() string { return tokensKey }

func (q TokensQuery) Viewer() string { return q.UserID }

func RegisterQueries(bus *queries.InMemoryBus, svc *appdevices.Service) {
	queries.RegisterHandler[TokensQuery, []string](bus, tokensKey, queries.HandlerFunc[TokensQuery, []string](
		func(ctx context.Context, q TokensQuery) ([]string, error) {
			return svc.Tokens(ctx, q.UserID)
		}))
}
