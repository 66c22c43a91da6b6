package postgresengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/branchlib/lending-go/lending"
	"github.com/branchlib/lending-go/lending/postgresengine"
)

func Test_NewEngineFromPGXPool_When_ThePool_IsNil(t *testing.T) {
	engine, err := postgresengine.NewEngineFromPGXPool(nil)

	assert.Nil(t, engine)
	assert.ErrorIs(t, err, lending.ErrNilDatabaseConnection)
}

func Test_NewEngineFromSQLDB_When_TheHandle_IsNil(t *testing.T) {
	engine, err := postgresengine.NewEngineFromSQLDB(nil)

	assert.Nil(t, engine)
	assert.ErrorIs(t, err, lending.ErrNilDatabaseConnection)
}

func Test_NewEngineFromSQLX_When_TheHandle_IsNil(t *testing.T) {
	engine, err := postgresengine.NewEngineFromSQLX(nil)

	assert.Nil(t, engine)
	assert.ErrorIs(t, err, lending.ErrNilDatabaseConnection)
}
