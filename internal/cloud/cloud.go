// Package cloud builds the Google clients (Firebase app, Cloud Storage) from
// the process configuration.
package cloud

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"school_bus/internal/config"
)

// ClientOptions turns FIREBASE_CREDENTIALS into client options. The value is
// either inline service account JSON or a path to a key file.
func ClientOptions(cfg *config.Config) []option.ClientOption {
	creds := strings.TrimSpace(cfg.FirebaseCredentials)
	switch {
	case creds == "":
		return nil
	case strings.HasPrefix(creds, "{"):
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	default:
		return []option.ClientOption{option.WithCredentialsFile(creds)}
	}
}

// NewFirebaseApp initializes the Firebase app used for Auth and the Realtime
// Database.
func NewFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.FirebaseProjectID,
		DatabaseURL:   cfg.FirebaseRTDBURL,
		StorageBucket: cfg.StorageBucket,
	}, ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	return app, nil
}

// NewStorageClient opens a Cloud Storage client with the same credentials.
func NewStorageClient(ctx context.Context, cfg *config.Config) (*storage.Client, error) {
	client, err := storage.NewClient(ctx, ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return client, nil
}
