// Package dummydb is an in-memory storage backend for tests.
package dummydb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/trezcool/maoni/core"
	"github.com/trezcool/maoni/core/feedback"
	"github.com/trezcool/maoni/core/instance"
	"github.com/trezcool/maoni/core/roster"
	"github.com/trezcool/maoni/core/user"
)

type (
	DB struct {
		user     *userTable
		instance *instanceTable
		roster   *rosterTable
		feedback *feedbackTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
		otps  map[string]*user.OTP // keyed by user ID
	}

	instanceTable struct {
		sync.RWMutex
		table      map[string]*instance.Instance
		secretCode string
	}

	rosterTable struct {
		sync.RWMutex
		batches  map[string]*roster.Batch
		members  map[string]map[string]struct{} // batch ID -> student ID set
		subjects map[string]*roster.Subject
		sections map[string]*roster.Section
	}

	feedbackTable struct {
		sync.RWMutex
		forms      map[string]*feedback.Form
		connectors map[string]*feedback.Connector
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{
			table: make(map[string]*user.User),
			otps:  make(map[string]*user.OTP),
		},
		instance: &instanceTable{table: make(map[string]*instance.Instance)},
		roster: &rosterTable{
			batches:  make(map[string]*roster.Batch),
			members:  make(map[string]map[string]struct{}),
			subjects: make(map[string]*roster.Subject),
			sections: make(map[string]*roster.Section),
		},
		feedback: &feedbackTable{
			forms:      make(map[string]*feedback.Form),
			connectors: make(map[string]*feedback.Connector),
		},
	}
	return db, nil
}

var _ core.DB = (*DB)(nil)

// the SQL executor surface is never exercised by the in-memory repos

func (db *DB) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (db *DB) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (db *DB) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }
func (db *DB) GetContext(context.Context, interface{}, string, ...interface{}) error {
	return nil
}
func (db *DB) SelectContext(context.Context, interface{}, string, ...interface{}) error {
	return nil
}

func (db *DB) BeginTx(context.Context) (core.DBTransactor, error) {
	return &noopTx{db}, nil
}

// noopTx applies writes directly; there is nothing to commit or roll back.
type noopTx struct {
	*DB
}

var _ core.DBTransactor = (*noopTx)(nil)

func (tx *noopTx) Commit() error   { return nil }
func (tx *noopTx) Rollback() error { return nil }
