package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

// FirebaseBackend stores serialized sessions under /sessions in a Firebase
// Realtime Database.
type FirebaseBackend struct {
	client *db.Client
}

// NewFirebaseBackend initialises a Firebase app from the service-account
// JSON file at credentialsFile and returns a backend bound to databaseURL.
// If credentialsFile is empty, the SDK falls back to
// GOOGLE_APPLICATION_CREDENTIALS or the default service account.
func NewFirebaseBackend(ctx context.Context, credentialsFile, databaseURL string) (*FirebaseBackend, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: databaseURL}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining realtime database client: %w", err)
	}

	slog.Info("firebase session backend initialised", "database_url", databaseURL)
	return &FirebaseBackend{client: client}, nil
}

func (b *FirebaseBackend) ref(id string) *db.Ref {
	return b.client.NewRef("sessions/" + id)
}

func (b *FirebaseBackend) Load(ctx context.Context, id string) ([]byte, error) {
	var raw json.RawMessage
	if err := b.ref(id).Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("reading session ref: %w", err)
	}
	// The realtime database reports a missing key as a JSON null.
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNotFound
	}
	return raw, nil
}

func (b *FirebaseBackend) Save(ctx context.Context, id string, data []byte) error {
	if err := b.ref(id).Set(ctx, json.RawMessage(data)); err != nil {
		return fmt.Errorf("writing session ref: %w", err)
	}
	return nil
}

func (b *FirebaseBackend) Delete(ctx context.Context, id string) error {
	if err := b.ref(id).Delete(ctx); err != nil {
		return fmt.Errorf("deleting session ref: %w", err)
	}
	return nil
}
