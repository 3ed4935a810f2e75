// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb registers a "fakedb" SQL driver serving canned rows and
// recording executed statements.
package fakedb // import "github.com/go-lpc/jesd/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

var query struct {
	mu    sync.Mutex
	rows  Rows
	execs []Exec
	err   error
}

// Exec is a recorded statement that does not return rows.
type Exec struct {
	Query string
	Args  []driver.Value
}

// Run runs f with rows as the result of every query issued by f.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	return run(ctx, rows, nil, f)
}

// RunErr runs f with every query and statement issued by f failing with err.
func RunErr(ctx context.Context, err error, f func(ctx context.Context) error) error {
	return run(ctx, Rows{}, err, f)
}

func run(ctx context.Context, rows Rows, err error, f func(ctx context.Context) error) error {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.rows = rows
	query.execs = nil
	query.err = err

	return f(ctx)
}

// Execs returns the statements executed so far by the current Run.
// Execs must be called from within the function passed to Run.
func Execs() []Exec {
	return query.execs
}

func init() {
	sql.Register("fakedb", drv{})
}

type drv struct{}

func (drv) Open(name string) (driver.Conn, error) { return conn{}, nil }

// conn serves queries and statements directly, without preparing them.
type conn struct{}

func (conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("fakedb: prepared statements not supported")
}

func (conn) Close() error { return nil }

func (conn) Begin() (driver.Tx, error) {
	return nil, errors.New("fakedb: transactions not supported")
}

func (conn) QueryContext(ctx context.Context, q string, args []driver.NamedValue) (driver.Rows, error) {
	if query.err != nil {
		return nil, query.err
	}
	return &query.rows, nil
}

func (conn) ExecContext(ctx context.Context, q string, args []driver.NamedValue) (driver.Result, error) {
	if query.err != nil {
		return nil, query.err
	}
	vs := make([]driver.Value, len(args))
	for i, arg := range args {
		vs[i] = arg.Value
	}
	query.execs = append(query.execs, Exec{Query: q, Args: vs})
	return driver.RowsAffected(1), nil
}

// Rows holds the column names and values returned by a query.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

func (rows *Rows) Columns() []string { return rows.Names }
func (rows *Rows) Close() error      { return nil }

func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Conn           = conn{}
	_ driver.QueryerContext = conn{}
	_ driver.ExecerContext  = conn{}
	_ driver.Rows           = (*Rows)(nil)
)
