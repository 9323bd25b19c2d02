package middleware

import (
	"context"

	"marketchat/internal/app/commands"
	"marketchat/internal/app/queries"
)

// ValidatingCommand is implemented by commands that can reject themselves before any
// handler or store is touched.
type ValidatingCommand interface {
	commands.Command
	Validate() error
}

func Validation() CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if v, ok := cmd.(ValidatingCommand); ok {
				if err := v.Validate(); err != nil {
					return nil, err
				}
			}
			return nextFn(ctx, cmd)
		})
	}
}

type ValidatingQuery interface {
	queries.Query
	Validate() error
}

func QueryValidation() QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if _, scoped := q.(queries.Viewed); scoped && queries.ViewerOf(q) == "" {
				return nil, queries.ErrNoViewer
			}
			if v, ok := q.(ValidatingQuery); ok {
				if err := v.Validate(); err != nil {
					return nil, err
				}
			}
			return nextFn(ctx, q)
		})
	}
}
