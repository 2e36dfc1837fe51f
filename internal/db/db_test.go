package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// fakeDriver counts commits and rollbacks and can fail the first N commits
// with a configurable Postgres error code.
type fakeDriver struct {
	commits     int64
	rollbacks   int64
	failCommits int64
	failCode    pq.ErrorCode
}

func (d *fakeDriver) Open(string) (driver.Conn, error) { return &fakeConn{d: d}, nil }

type fakeConn struct {
	d *fakeDriver
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return fakeStmt{}, nil }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return fakeTx{d: c.d}, nil }

func (c *fakeConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return fakeTx{d: c.d}, nil
}

type fakeTx struct {
	d *fakeDriver
}

func (t fakeTx) Commit() error {
	call := atomic.AddInt64(&t.d.commits, 1)
	if call <= t.d.failCommits {
		return &pq.Error{Code: t.d.failCode}
	}
	return nil
}

func (t fakeTx) Rollback() error {
	atomic.AddInt64(&t.d.rollbacks, 1)
	return nil
}

type fakeStmt struct{}

func (fakeStmt) Close() error                               { return nil }
func (fakeStmt) NumInput() int                              { return -1 }
func (fakeStmt) Exec([]driver.Value) (driver.Result, error) { return nil, nil }
func (fakeStmt) Query([]driver.Value) (driver.Rows, error)  { return nil, nil }

var driverCounter uint64

func openFakeDB(t *testing.T, d *fakeDriver) *sqlx.DB {
	t.Helper()
	name := fmt.Sprintf("fake-%d", atomic.AddUint64(&driverCounter, 1))
	sql.Register(name, d)
	sqlDB, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return sqlx.NewDb(sqlDB, name)
}

func TestWithTxCommits(t *testing.T) {
	d := &fakeDriver{}
	xdb := openFakeDB(t, d)
	if err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.commits != 1 || d.rollbacks != 0 {
		t.Fatalf("expected commit=1 rollback=0, got %d/%d", d.commits, d.rollbacks)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	d := &fakeDriver{}
	xdb := openFakeDB(t, d)
	if err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return errors.New("boom") }); err == nil {
		t.Fatal("expected error")
	}
	if d.rollbacks != 1 {
		t.Fatalf("expected rollback=1, got %d", d.rollbacks)
	}
}

func TestWithTxRetriesOnSerializableConflict(t *testing.T) {
	d := &fakeDriver{failCommits: 1, failCode: "40001"}
	xdb := openFakeDB(t, d)
	if err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.commits != 2 {
		t.Fatalf("expected 2 commit attempts, got %d", d.commits)
	}
}

func TestWithTxStopsAfterRetryLimit(t *testing.T) {
	d := &fakeDriver{failCommits: 10, failCode: "40P01"}
	xdb := openFakeDB(t, d)
	if err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return nil }); err == nil {
		t.Fatal("expected retry limit error")
	}
	if d.commits != 5 {
		t.Fatalf("expected 5 commit attempts, got %d", d.commits)
	}
}
