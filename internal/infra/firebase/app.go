package firebase

import (
	"context"
	"errors"

	fb "firebase.google.com/go/v4"
)

var ErrProjectRequired = errors.New("firebase: project id is required")

// NewApp initializes the Admin SDK with application default credentials.
func NewApp(ctx context.Context, projectID string) (*fb.App, error) {
	if projectID == "" {
		return nil, ErrProjectRequired
	}
	return fb.NewApp(ctx, &fb.Config{ProjectID: projectID})
}
