package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedResult answers every statement containing match.
type scriptedResult struct {
	match string
	cols  []string
	rows  [][]driver.Value
}

type executed struct {
	query string
	args  []driver.Value
}

// scriptedDB is a database/sql driver that answers from a fixed script and
// records every statement it was given.
type scriptedDB struct {
	mu       sync.Mutex
	script   []scriptedResult
	executed []executed
}

func (s *scriptedDB) Connect(context.Context) (driver.Conn, error) { return &scriptedConn{db: s}, nil }
func (s *scriptedDB) Driver() driver.Driver                       { return scriptedDriver{s} }

type scriptedDriver struct{ db *scriptedDB }

func (d scriptedDriver) Open(string) (driver.Conn, error) { return &scriptedConn{db: d.db}, nil }

func (s *scriptedDB) record(query string, args []driver.Value) *scriptedResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, executed{query: query, args: args})
	for i := range s.script {
		if strings.Contains(query, s.script[i].match) {
			return &s.script[i]
		}
	}
	return nil
}

func (s *scriptedDB) find(fragment string) []executed {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []executed
	for _, e := range s.executed {
		if strings.Contains(e.query, fragment) {
			out = append(out, e)
		}
	}
	return out
}

type scriptedConn struct{ db *scriptedDB }

func (c *scriptedConn) Prepare(query string) (driver.Stmt, error) {
	return &scriptedStmt{db: c.db, query: query}, nil
}
func (c *scriptedConn) Close() error              { return nil }
func (c *scriptedConn) Begin() (driver.Tx, error) { return scriptedTx{}, nil }

type scriptedTx struct{}

func (scriptedTx) Commit() error   { return nil }
func (scriptedTx) Rollback() error { return nil }

type scriptedStmt struct {
	db    *scriptedDB
	query string
}

func (s *scriptedStmt) Close() error  { return nil }
func (s *scriptedStmt) NumInput() int { return -1 }

func (s *scriptedStmt) Exec(args []driver.Value) (driver.Result, error) {
	res := s.db.record(s.query, args)
	if res != nil {
		return driver.RowsAffected(len(res.rows)), nil
	}
	return driver.RowsAffected(1), nil
}

func (s *scriptedStmt) Query(args []driver.Value) (driver.Rows, error) {
	res := s.db.record(s.query, args)
	if res == nil {
		return &scriptedRows{}, nil
	}
	return &scriptedRows{cols: res.cols, rows: res.rows}, nil
}

type scriptedRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *scriptedRows) Columns() []string { return r.cols }
func (r *scriptedRows) Close() error      { return nil }

func (r *scriptedRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

func newScriptedRepo(script ...scriptedResult) (*CampaignRepository, *scriptedDB) {
	db := &scriptedDB{script: script}
	return &CampaignRepository{DB: sql.OpenDB(db)}, db
}

func cancelRequest() CancelRequest {
	return CancelRequest{
		CompanyID:  "acme",
		CampaignID: 7,
		By:         "u1",
		ByType:     "company_admin",
		Reason:     "typo",
		NotBefore:  time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC),
	}
}

func TestCancelRefundsRecordedDebit(t *testing.T) {
	repo, db := newScriptedRepo(
		scriptedResult{match: "RETURNING debit_amount", cols: []string{"debit_amount"}, rows: [][]driver.Value{{int64(600)}}},
		scriptedResult{match: "UPDATE companies", cols: []string{"balance"}, rows: [][]driver.Value{{int64(4600)}}},
	)

	ok, err := repo.Cancel(context.Background(), cancelRequest())
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}

	refunds := db.find("UPDATE companies")
	if len(refunds) != 1 {
		t.Fatalf("expected one balance update, got %d", len(refunds))
	}
	if refunds[0].args[0] != int64(600) {
		t.Errorf("refund amount: got %v, want 600", refunds[0].args[0])
	}
	if strings.Contains(refunds[0].query, "billing_type") {
		t.Errorf("refund must not depend on the current billing type: %s", refunds[0].query)
	}
	ledger := db.find("'refund'")
	if len(ledger) != 1 || ledger[0].args[2] != int64(600) || ledger[0].args[3] != int64(4600) {
		t.Errorf("refund ledger row: %+v", ledger)
	}
}

// A campaign committed without a debit (postpaid at the time) gets nothing
// back, even if the company is prepaid by now.
func TestCancelWithoutDebitRefundsNothing(t *testing.T) {
	repo, db := newScriptedRepo(
		scriptedResult{match: "RETURNING debit_amount", cols: []string{"debit_amount"}, rows: [][]driver.Value{{int64(0)}}},
	)

	ok, err := repo.Cancel(context.Background(), cancelRequest())
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	if n := len(db.find("UPDATE companies")); n != 0 {
		t.Errorf("expected no balance update, got %d", n)
	}
	if n := len(db.find("balance_transactions")); n != 0 {
		t.Errorf("expected no ledger row, got %d", n)
	}
	if n := len(db.find("UPDATE outbound_messages")); n != 1 {
		t.Errorf("expected pending messages to be voided, got %d updates", n)
	}
}

func TestCancelRefusedAtWriteTime(t *testing.T) {
	repo, db := newScriptedRepo(
		scriptedResult{match: "RETURNING debit_amount", cols: []string{"debit_amount"}},
	)

	ok, err := repo.Cancel(context.Background(), cancelRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected the conditional update to refuse")
	}
	if n := len(db.find("outbound_messages")); n != 0 {
		t.Errorf("messages must stay untouched, got %d statements", n)
	}
}
