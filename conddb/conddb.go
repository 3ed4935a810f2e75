// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the condition and configuration
// database of the JESD204 links: the configured link parameters and the
// history of link verifications.
package conddb // import "github.com/go-lpc/jesd/conddb"

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-lpc/jesd/internal/regs"
	"github.com/go-lpc/jesd/link"
	"github.com/go-sql-driver/mysql"
)

var (
	drvName = "mysql"
)

// DB exposes convenience methods to easily retrieve configuration data
// and store verification reports.
type DB struct {
	db   *sql.DB
	name string // name of the database
}

// Option configures the connection to the database.
type Option func(cfg *mysql.Config)

// WithAddr sets the network address of the database server.
func WithAddr(addr string) Option {
	return func(cfg *mysql.Config) {
		cfg.Addr = addr
	}
}

// WithUser sets the credentials used to connect to the database.
func WithUser(usr, pwd string) Option {
	return func(cfg *mysql.Config) {
		cfg.User = usr
		cfg.Passwd = pwd
	}
}

// Open opens a connection to the database dbname.
func Open(dbname string, opts ...Option) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname, opts...))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(dbname string, opts ...Option) string {
	cfg := mysql.NewConfig()
	cfg.User = "username"
	cfg.Passwd = "s3cr3t"
	cfg.Net = "tcp"
	cfg.Addr = "localhost:3306"
	cfg.DBName = dbname
	cfg.ParseTime = true
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg.FormatDSN()
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LinkConfig is the configuration of a link, as stored in the database.
type LinkConfig struct {
	Device string
	Link   link.Link
	Lanes  uint8 // enabled lanes
	Config link.LaneConfig
	LIDs   [regs.NumLanes]uint8
}

// Devices returns the names of all the devices with a link configuration.
func (db *DB) Devices(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var devs []string
	rows, err := db.db.QueryContext(ctx, "SELECT DISTINCT device FROM links ORDER BY device")
	if err != nil {
		return devs, fmt.Errorf("conddb: could not query devices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dev string
		err = rows.Scan(&dev)
		if err != nil {
			return devs, fmt.Errorf("conddb: could not get device name: %w", err)
		}
		devs = append(devs, dev)
	}

	if err := rows.Err(); err != nil {
		return devs, fmt.Errorf("conddb: could not scan db for devices: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return devs, fmt.Errorf("conddb: context error while retrieving devices: %w", err)
	}

	return devs, nil
}

// LinkConfig returns the latest configuration of the link of device dev
// with the given role and index.
func (db *DB) LinkConfig(ctx context.Context, dev string, role link.Role, idx int) (LinkConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg := LinkConfig{
		Device: dev,
		Link:   link.Link{Role: role, Index: idx},
	}

	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT variant, lanes, did, l, scr, f, k, m, n, cs, np, s, hd, jesdv, subclassv, lids
FROM links
WHERE (
	device=? AND role=? AND idx=?
)
ORDER BY datetime DESC LIMIT 1
`,
		dev, role.String(), idx,
	)
	if err != nil {
		return cfg, fmt.Errorf("conddb: could not run link cfg query: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			variant string
			lids    string
			c       = &cfg.Config
		)
		err = rows.Scan(
			&variant, &cfg.Lanes,
			&c.DID, &c.L, &c.SCR, &c.F, &c.K, &c.M, &c.N,
			&c.CS, &c.NP, &c.S, &c.HD, &c.JESDV, &c.SubclassV,
			&lids,
		)
		if err != nil {
			return cfg, fmt.Errorf("conddb: could not scan link cfg: %w", err)
		}

		switch variant {
		case "legacy":
			cfg.Link.Variant = link.Legacy
		case "extended":
			cfg.Link.Variant = link.Extended
		default:
			return cfg, fmt.Errorf("conddb: invalid link variant %q", variant)
		}

		raw, err := hex.DecodeString(lids)
		if err != nil {
			return cfg, fmt.Errorf("conddb: could not decode lane ids %q: %w", lids, err)
		}
		if len(raw) != len(cfg.LIDs) {
			return cfg, fmt.Errorf("conddb: invalid number of lane ids (got=%d, want=%d)", len(raw), len(cfg.LIDs))
		}
		copy(cfg.LIDs[:], raw)
		n++
	}

	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: could not scan db for link cfg: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: context error while retrieving link cfg: %w", err)
	}

	if n == 0 {
		return cfg, fmt.Errorf("conddb: no configuration for %s %v-%d", dev, role, idx)
	}

	return cfg, nil
}

// SaveReport stores the outcome of the verification of a link of device
// dev, one row per enabled lane.
func (db *DB) SaveReport(ctx context.Context, dev string, rep link.Report) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	for lane := 0; lane < regs.NumLanes; lane++ {
		if rep.Enabled&(1<<lane) == 0 {
			continue
		}
		lr := rep.Lane[lane]
		_, err := db.db.ExecContext(
			ctx,
			`INSERT INTO ilas_reports (device, role, idx, lane, datetime, mismatch, nonzero, fchk) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			dev, rep.Link.Role.String(), rep.Link.Index, lane, now,
			uint32(lr.Mismatch), uint32(lr.NonZero), lr.Observed.FCHK,
		)
		if err != nil {
			return fmt.Errorf("conddb: could not store ILAS report of lane %d: %w", lane, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("conddb: context error while storing ILAS report: %w", err)
	}

	return nil
}

// SaveErrorCounts stores the error counters of a lane of a link of
// device dev.
func (db *DB) SaveErrorCounts(ctx context.Context, dev string, l link.Link, lane int, cnt [link.NumErrClasses]uint8) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		`INSERT INTO error_counts (device, role, idx, lane, datetime, disparity, not_in_table, unexpected_k) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		dev, l.Role.String(), l.Index, lane, time.Now().UTC(),
		cnt[0], cnt[1], cnt[2],
	)
	if err != nil {
		return fmt.Errorf("conddb: could not store error counts of lane %d: %w", lane, err)
	}
	return nil
}
