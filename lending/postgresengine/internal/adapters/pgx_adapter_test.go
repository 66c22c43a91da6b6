package adapters

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

// stubPGXTx overrides Rollback only; the embedded interface covers the rest.
type stubPGXTx struct {
	pgx.Tx
	rollbackErr error
}

func (s stubPGXTx) Rollback(_ context.Context) error {
	return s.rollbackErr
}

func Test_PGXTx_Rollback_SwallowsClosedTxErrors(t *testing.T) {
	// arrange: the driver may wrap the sentinel
	tx := &pgxTx{tx: stubPGXTx{rollbackErr: fmt.Errorf("conn busy: %w", pgx.ErrTxClosed)}}

	// act
	err := tx.Rollback(context.Background())

	// assert
	assert.NoError(t, err, "a rollback after commit must stay silent")
}

func Test_PGXTx_Rollback_PropagatesOtherErrors(t *testing.T) {
	// arrange
	rollbackErr := errors.New("connection reset")
	tx := &pgxTx{tx: stubPGXTx{rollbackErr: rollbackErr}}

	// act
	err := tx.Rollback(context.Background())

	// assert
	assert.ErrorIs(t, err, rollbackErr)
}
