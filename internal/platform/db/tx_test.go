package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
}

func TestTxFromContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := TxFromContext(ctx); ok {
		t.Error("found transaction in empty context")
	}

	tx := &fakeTx{}
	ctx = WithTx(ctx, tx)
	got, ok := TxFromContext(ctx)
	if !ok {
		t.Fatal("transaction not found")
	}
	if got != tx {
		t.Error("wrong transaction returned")
	}
}

func TestConnPrefersTransaction(t *testing.T) {
	tx := &fakeTx{}
	ctx := WithTx(context.Background(), tx)
	if got := Conn(ctx, nil); got != Querier(tx) {
		t.Error("Conn did not return the context transaction")
	}
}
