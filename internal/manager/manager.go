// Package manager implements the resource manager: it bounds how many
// databases and pinned connections are resident at once, using two
// independently capacity-limited SIEVE caches, and keeps at least one
// placeholder connection open per memory-resident database so the
// embedded engine's page cache survives a pinned connection's eviction.
// Grounded on hiisi-server/src/manager.rs's ResourceManager.
package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oriys/hiisid/internal/sieve"
	"github.com/oriys/hiisid/internal/sqlengine"
)

// MaxPageCacheSizeKB is the default negative PRAGMA cache_size magnitude,
// matching manager.rs's MAX_PAGE_CACHE_SIZE.
const MaxPageCacheSizeKB = 1000

// residentDB is a memory-resident database entry: the directory housing
// its file plus a placeholder connection that keeps its page cache warm.
type residentDB struct {
	dir         string
	placeholder *sqlengine.Connection
}

// connKey scopes a pinned connection to both its baton and its owning
// tenant, so two tenants can never collide on a shared baton string.
type connKey struct {
	namespace string
	baton     string
}

// Manager is the resource manager. It holds no locks: the engine driving
// it runs requests one at a time on a single goroutine.
type Manager struct {
	dbPath             string
	maxPageCacheSizeKB int64

	dbCache   *sieve.Cache[string, *residentDB]
	connCache *sieve.Cache[connKey, *sqlengine.Connection]
}

// New builds a Manager rooted at dbPath, creating the directory if absent.
func New(dbPath string, maxMemoryResidentDBs, maxConcurrentConns int, maxPageCacheSizeKB int64) (*Manager, error) {
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("create db root %s: %w", dbPath, err)
	}
	m := &Manager{
		dbPath:             dbPath,
		maxPageCacheSizeKB: maxPageCacheSizeKB,
		dbCache:            sieve.New[string, *residentDB](maxMemoryResidentDBs),
		connCache:          sieve.New[connKey, *sqlengine.Connection](maxConcurrentConns),
	}
	m.dbCache.OnEvict(func(_ string, db *residentDB) {
		db.placeholder.Close()
	})
	m.connCache.OnEvict(func(_ connKey, conn *sqlengine.Connection) {
		conn.Close()
	})
	return m, nil
}

// CreateDatabase ensures dbName's on-disk directory and file exist,
// without opening a resident connection for it.
func (m *Manager) CreateDatabase(namespace string) error {
	dbDir := filepath.Join(m.dbPath, namespace)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("create database dir %s: %w", dbDir, err)
	}
	dbFile := filepath.Join(dbDir, namespace+".db")
	conn, err := sqlengine.Open(dbFile)
	if err != nil {
		return fmt.Errorf("create database %s: %w", namespace, err)
	}
	return conn.Close()
}

// GetConn returns the connection pinned to (namespace, baton), opening a
// fresh one against the namespace's resident database (opening that
// database too, if it is not already memory-resident) when none exists
// yet. This mirrors manager.rs's get_conn lookup chain exactly.
func (m *Manager) GetConn(ctx context.Context, namespace, baton string) (*sqlengine.Connection, error) {
	key := connKey{namespace: namespace, baton: baton}
	if conn, ok := m.connCache.Get(key); ok {
		return conn, nil
	}

	db, ok := m.dbCache.Get(namespace)
	if !ok {
		var err error
		db, err = m.openResident(namespace)
		if err != nil {
			return nil, err
		}
		m.dbCache.Insert(namespace, db)
	}

	conn, err := sqlengine.Open(filepath.Join(db.dir, namespace+".db"))
	if err != nil {
		return nil, fmt.Errorf("open connection for %s/%s: %w", namespace, baton, err)
	}
	m.connCache.Insert(key, conn)
	return conn, nil
}

// DropConn closes and removes (namespace, baton)'s pinned connection, if
// any; a no-op otherwise. The resident database entry is left untouched.
func (m *Manager) DropConn(namespace, baton string) {
	if conn, ok := m.connCache.Pop(connKey{namespace: namespace, baton: baton}); ok {
		conn.Close()
	}
}

// DBCacheLen reports the current number of memory-resident databases.
func (m *Manager) DBCacheLen() int { return m.dbCache.Len() }

// ConnCacheLen reports the current number of pinned connections.
func (m *Manager) ConnCacheLen() int { return m.connCache.Len() }

func (m *Manager) openResident(namespace string) (*residentDB, error) {
	dbDir := filepath.Join(m.dbPath, namespace)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("create database dir %s: %w", dbDir, err)
	}
	dbFile := filepath.Join(dbDir, namespace+".db")
	conn, err := sqlengine.Open(dbFile)
	if err != nil {
		return nil, fmt.Errorf("open resident database %s: %w", namespace, err)
	}
	ctx := context.Background()
	if err := conn.Pragma(ctx, "journal_mode", "WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Pragma(ctx, "cache_size", fmt.Sprintf("-%d", m.maxPageCacheSizeKB)); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Pragma(ctx, "locking_mode", "EXCLUSIVE"); err != nil {
		conn.Close()
		return nil, err
	}
	return &residentDB{dir: dbDir, placeholder: conn}, nil
}
