package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/voxrecon/internal/config"
)

func TestWrapQueryError(t *testing.T) {
	assert.NoError(t, wrapQueryError(nil))

	plain := errors.New("socket closed")
	assert.Equal(t, plain, wrapQueryError(plain))

	conflict := &surrealdb.QueryError{Message: "Transaction conflict: resource busy"}
	assert.ErrorIs(t, wrapQueryError(conflict), ErrTransactionConflict)

	other := &surrealdb.QueryError{Message: "parse error"}
	assert.NotErrorIs(t, wrapQueryError(other), ErrTransactionConflict)
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Default()
	cfg.SurrealDBNamespace = "ns"
	got := ConfigFrom(cfg)
	assert.Equal(t, "ns", got.Namespace)
	assert.Equal(t, cfg.SurrealDBURL, got.URL)
	assert.Equal(t, "root", got.AuthLevel)
}
