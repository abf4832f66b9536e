package domain

import "context"

// ObjectStore persists artifact bytes under a key and returns a public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// UploadResolver maps an upload id, scoped to its owner, to a fetchable URL.
type UploadResolver interface {
	Resolve(ctx context.Context, ownerID, uploadID string) (string, error)
}

// Notifier delivers a "generation complete" notification. Failures are the
// caller's to log; they never block job finalization.
type Notifier interface {
	GenerationComplete(ctx context.Context, ownerID, jobID, viewURL string) error
}

// SecurityLog records audit events keyed by a hashed source identity.
type SecurityLog interface {
	Log(eventType, identityHash string, context map[string]any)
}
