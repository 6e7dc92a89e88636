package realtime

import (
	"context"
	"encoding/json"
	"path"

	"firebase.google.com/go/v4/db"

	"school_bus/internal/apperr"
)

// tree is the part of the Realtime Database client the store uses.
type tree interface {
	set(ctx context.Context, path string, v any) error
	get(ctx context.Context, path string, v any) error
}

type rtdb struct{ client *db.Client }

func (r rtdb) set(ctx context.Context, p string, v any) error {
	return r.client.NewRef(p).Set(ctx, v)
}

func (r rtdb) get(ctx context.Context, p string, v any) error {
	return r.client.NewRef(p).Get(ctx, v)
}

// FirebaseStore keeps realtime keys under orgs/<org>/<key> in the Firebase
// Realtime Database, where the mobile apps read them. Writes are also
// published to the local hub for dashboards on websockets.
type FirebaseStore struct {
	tree tree
	hub  *Hub
}

func NewFirebaseStore(client *db.Client, hub *Hub) *FirebaseStore {
	return &FirebaseStore{tree: rtdb{client: client}, hub: hub}
}

func keyPath(org, key string) string {
	return path.Join("orgs", org, key)
}

func (s *FirebaseStore) Set(ctx context.Context, org, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return apperr.Validation("realtime value for %q is not JSON encodable", key)
	}
	if err := s.tree.set(ctx, keyPath(org, key), json.RawMessage(raw)); err != nil {
		return apperr.Upstream(err, "could not write realtime key %q", key)
	}
	if s.hub != nil {
		s.hub.Publish(Event{OrgID: org, Key: key, Value: raw})
	}
	return nil
}

func (s *FirebaseStore) Get(ctx context.Context, org, key string, out any) error {
	var raw json.RawMessage
	if err := s.tree.get(ctx, keyPath(org, key), &raw); err != nil {
		return apperr.Upstream(err, "could not read realtime key %q", key)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return apperr.NotFound("realtime key %q not set", key)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Validation("realtime value for %q has unexpected shape", key)
	}
	return nil
}
