package store

import "github.com/google/uuid"

// NewID generates a primary key for any table in schema.sql. A single
// generator keeps id shape consistent across entity kinds, which matters
// for CertificateRequest.TargetID: it stores a bare id without a kind
// discriminator embedded, so ids must never collide across tables.
func NewID() string { return uuid.NewString() }
