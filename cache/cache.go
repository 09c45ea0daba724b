// Package cache stores compiled prototypes in SQLite, keyed by a content
// hash of the source and the options that shaped the code.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/moonc/compiler"
	"github.com/chazu/moonc/proto"
)

// ErrNotFound indicates no prototype is stored under a key.
var ErrNotFound = errors.New("cache entry not found")

// Cache is a SQLite-backed prototype store. It is safe for concurrent use.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	log  commonlog.Logger
}

// Open opens or creates the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes access and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS protos (
		key     TEXT PRIMARY KEY,
		source  TEXT NOT NULL,
		data    BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{
		db:   db,
		path: path,
		log:  commonlog.GetLogger("moonc.cache"),
	}, nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the prototype stored under key. An entry that no longer
// decodes, for instance after a format change, is dropped and reported as
// ErrNotFound.
func (c *Cache) Get(key Key) (*proto.Proto, error) {
	var data []byte
	err := c.db.QueryRow("SELECT data FROM protos WHERE key = ?", key.String()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying cache: %w", err)
	}

	p, err := proto.Unmarshal(data)
	if err != nil {
		c.log.Infof("dropping undecodable entry %s: %s", key, err)
		if err := c.Delete(key); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return p, nil
}

// Put stores p under key, replacing any previous entry.
func (c *Cache) Put(key Key, p *proto.Proto) error {
	data, err := proto.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding prototype: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO protos (key, source, data, created) VALUES (?, ?, ?, ?)",
		key.String(), p.Source, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving prototype: %w", err)
	}
	return nil
}

// Delete removes the entry under key, if any.
func (c *Cache) Delete(key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM protos WHERE key = ?", key.String()); err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	return nil
}

// Len returns the number of stored prototypes.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM protos").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM protos"); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

// Compile returns the cached prototype for input, compiling and storing it
// on a miss. The boolean reports a cache hit. Compile errors are not
// cached.
func (c *Cache) Compile(name, input string, opts Options, extra ...compiler.Option) (*proto.Proto, bool, error) {
	key := KeyFor(name, input, opts)

	p, err := c.Get(key)
	if err == nil {
		c.log.Debugf("hit %s (%s)", name, key)
		return p, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	compileOpts := append([]compiler.Option{compiler.WithMaxRegisters(opts.MaxRegisters)}, extra...)
	p, err = compiler.Compile(name, input, compileOpts...)
	if err != nil {
		return nil, false, err
	}
	if err := c.Put(key, p); err != nil {
		return nil, false, err
	}
	c.log.Debugf("stored %s (%s)", name, key)
	return p, false, nil
}
