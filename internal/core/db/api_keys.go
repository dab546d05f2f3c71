// internal/core/db/api_keys.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/pricekeeper/internal/core/auth"
	"github.com/solatis/pricekeeper/internal/types"
)

type apiKeyRow struct {
	ID         string         `db:"api_key_id"`
	SellerID   sql.NullString `db:"seller_id"`
	RevokedAt  sql.NullString `db:"revoked_at"`
	LastUsedAt sql.NullString `db:"last_used_at"`
}

// APIKeyByHash implements auth.KeyStore.
func (s *Store) APIKeyByHash(ctx context.Context, keyHash string) (auth.KeyRecord, error) {
	var row apiKeyRow
	err := s.q.Get(ctx, "get-api-key-by-hash", &row, keyHash)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.KeyRecord{}, auth.ErrInvalidKey
	}
	if err != nil {
		return auth.KeyRecord{}, fmt.Errorf("%w: %v", auth.ErrKeyStore, err)
	}

	rec := auth.KeyRecord{
		ID:       row.ID,
		SellerID: row.SellerID.String,
		Revoked:  row.RevokedAt.Valid,
	}
	if row.LastUsedAt.Valid {
		if t, err := parseTime(row.LastUsedAt.String); err == nil {
			rec.LastUsedAt = &t
		}
	}
	return rec, nil
}

// TouchAPIKey implements auth.KeyStore.
func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.Exec(ctx, "update-last-used", formatTime(at), id)
	return err
}

// CreateAPIKey stores the hash of a newly issued key. An empty sellerID
// creates an operator key.
func (s *Store) CreateAPIKey(ctx context.Context, sellerID, name, keyHash string) (string, error) {
	id := types.NewID()
	seller := sql.NullString{String: sellerID, Valid: sellerID != ""}
	if _, err := s.q.Exec(ctx, "insert-api-key", id, seller, name, keyHash, formatTime(s.now())); err != nil {
		return "", fmt.Errorf("insert api key: %w", err)
	}
	return id, nil
}

// RevokeAPIKey marks a key revoked. Revoking twice is not an error.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, "revoke-api-key", formatTime(s.now()), id)
	return err
}
