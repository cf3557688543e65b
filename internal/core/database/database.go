package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/frahmantamala/document-management/internal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type txKey struct{}

// txState is the open transaction carried in a context along with the
// compensations to run when it does not commit.
type txState struct {
	tx *gorm.DB

	mu         sync.Mutex
	onRollback []func()
}

func (s *txState) rollback() {
	s.mu.Lock()
	hooks := s.onRollback
	s.onRollback = nil
	s.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

func stateFrom(ctx context.Context) (*txState, bool) {
	st, ok := ctx.Value(txKey{}).(*txState)
	return st, ok
}

// Open connects to postgres through the pgx-backed gorm driver.
func Open(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Source), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Transactor runs units of work inside a single database transaction.
// The transaction handle travels in the context so repositories join it.
type Transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTransaction commits when fn returns nil and rolls back otherwise.
// Nested calls reuse the outer transaction. Hooks registered with OnRollback
// run, newest first, when fn fails or the commit does.
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := stateFrom(ctx); ok {
		return fn(ctx)
	}
	st := &txState{}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st.tx = tx
		return fn(context.WithValue(ctx, txKey{}, st))
	})
	if err != nil {
		st.rollback()
	}
	return err
}

// OnRollback registers fn to run if the transaction carried by ctx does not
// commit. Outside a transaction it does nothing.
func OnRollback(ctx context.Context, fn func()) {
	st, ok := stateFrom(ctx)
	if !ok {
		return
	}
	st.mu.Lock()
	st.onRollback = append(st.onRollback, fn)
	st.mu.Unlock()
}

// Conn returns the transaction bound to ctx, or fallback scoped to ctx.
func Conn(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if st, ok := stateFrom(ctx); ok {
		return st.tx
	}
	return fallback.WithContext(ctx)
}

// InTransaction reports whether ctx carries an open transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := stateFrom(ctx)
	return ok
}
