package pgxutil_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/srbenoit/mathops-sub032/internal/data/pgxutil"
	"github.com/srbenoit/mathops-sub032/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		_, err := db.ExecContext(ctx, `CREATE TABLE tx_probe (id INT PRIMARY KEY)`)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = pgxutil.WithTx(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
			if _, execErr := tx.Exec(ctx, `INSERT INTO tx_probe VALUES (1)`); execErr != nil {
				return execErr
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		err = pgxutil.WithTx(ctx, db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
			_, execErr := tx.Exec(ctx, `INSERT INTO tx_probe VALUES (2)`)
			return execErr
		})
		require.NoError(t, err)

		var ids []int
		err = pgxutil.WithConn(ctx, db, func(conn *pgx.Conn) error {
			rows, qErr := conn.Query(ctx, `SELECT id FROM tx_probe ORDER BY id`)
			if qErr != nil {
				return qErr
			}
			ids, qErr = pgx.CollectRows(rows, pgx.RowTo[int])
			return qErr
		})
		require.NoError(t, err)
		assert.Equal(t, []int{2}, ids, "the failed transaction must not leave rows behind")
	})
}
