package cache

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chazu/moonc/compiler"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKeyFor(t *testing.T) {
	base := KeyFor("a.lua", "local x = 1", Options{MaxRegisters: 250})

	if KeyFor("a.lua", "local x = 1", Options{MaxRegisters: 250}) != base {
		t.Error("identical inputs produced different keys")
	}
	variants := []Key{
		KeyFor("b.lua", "local x = 1", Options{MaxRegisters: 250}),
		KeyFor("a.lua", "local x = 2", Options{MaxRegisters: 250}),
		KeyFor("a.lua", "local x = 1", Options{MaxRegisters: 10}),
		// Length prefixes keep name and source from running together.
		KeyFor("a.lualocal", " x = 1", Options{MaxRegisters: 250}),
	}
	for i, k := range variants {
		if k == base {
			t.Errorf("variant %d collides with base key", i)
		}
	}
	if len(base.String()) != 64 {
		t.Errorf("key string %q is not 64 hex digits", base)
	}
}

func TestKeyForNormalizesRegisters(t *testing.T) {
	same := []struct{ a, b int }{
		{0, 250},
		{-1, 250},
		{256, 255},
		{1000, 255},
	}
	for _, tc := range same {
		if KeyFor("n.lua", "local x", Options{MaxRegisters: tc.a}) != KeyFor("n.lua", "local x", Options{MaxRegisters: tc.b}) {
			t.Errorf("MaxRegisters %d and %d produced different keys", tc.a, tc.b)
		}
	}
	if KeyFor("n.lua", "local x", Options{MaxRegisters: 254}) == KeyFor("n.lua", "local x", Options{MaxRegisters: 255}) {
		t.Error("distinct register limits share a key")
	}
}

func TestCompileDefaultRegistersShareEntry(t *testing.T) {
	c := openTestCache(t)
	if _, hit, err := c.Compile("d.lua", "local a = 1", Options{}); err != nil || hit {
		t.Fatalf("first Compile: hit = %v, err = %v", hit, err)
	}
	if _, hit, err := c.Compile("d.lua", "local a = 1", Options{MaxRegisters: 250}); err != nil || !hit {
		t.Errorf("explicit default: hit = %v, err = %v", hit, err)
	}
	if n, _ := c.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestPutGet(t *testing.T) {
	c := openTestCache(t)
	p, err := compiler.Compile("put.lua", "local a, b = 1, 'two'")
	if err != nil {
		t.Fatal(err)
	}
	key := KeyFor("put.lua", "local a, b = 1, 'two'", Options{})

	if _, err := c.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before Put: err = %v, want ErrNotFound", err)
	}
	if err := c.Put(key, p); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := c.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Disassemble() != p.Disassemble() {
		t.Errorf("round trip changed the prototype:\n%s\nvs\n%s", got.Disassemble(), p.Disassemble())
	}

	if n, err := c.Len(); err != nil || n != 1 {
		t.Errorf("Len = %d, %v, want 1", n, err)
	}
	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: err = %v, want ErrNotFound", err)
	}
}

func TestGetDropsUndecodableEntry(t *testing.T) {
	c := openTestCache(t)
	key := KeyFor("bad.lua", "", Options{})
	if _, err := c.db.Exec("INSERT INTO protos (key, source, data, created) VALUES (?, ?, ?, 0)",
		key.String(), "bad.lua", []byte("not a prototype")); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: err = %v, want ErrNotFound", err)
	}
	if n, _ := c.Len(); n != 0 {
		t.Errorf("Len = %d after dropping entry, want 0", n)
	}
}

func TestCompileCachesResults(t *testing.T) {
	c := openTestCache(t)
	src := "local a = 1 + 2\nlocal b = a * 3"
	opts := Options{MaxRegisters: 250}

	first, hit, err := c.Compile("c.lua", src, opts)
	if err != nil || hit {
		t.Fatalf("first Compile: hit = %v, err = %v", hit, err)
	}
	second, hit, err := c.Compile("c.lua", src, opts)
	if err != nil || !hit {
		t.Fatalf("second Compile: hit = %v, err = %v", hit, err)
	}
	if first.Disassemble() != second.Disassemble() {
		t.Error("cached prototype differs from compiled one")
	}

	if _, hit, _ := c.Compile("c.lua", src, Options{MaxRegisters: 100}); hit {
		t.Error("different options hit the cache")
	}
	if n, _ := c.Len(); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
}

func TestCompileDoesNotCacheErrors(t *testing.T) {
	c := openTestCache(t)
	for i := 0; i < 2; i++ {
		_, hit, err := c.Compile("e.lua", "local a = 1 // 0", Options{})
		if err == nil || hit {
			t.Fatalf("attempt %d: hit = %v, err = %v", i, hit, err)
		}
		var ce *compiler.CompileError
		if !errors.As(err, &ce) {
			t.Errorf("error %v is not a *CompileError", err)
		}
	}
	if n, _ := c.Len(); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

func TestClearAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Compile("r.lua", "local x = 'kept'", Options{}); err != nil {
		t.Fatal(err)
	}
	c.Close()

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, hit, err := c.Compile("r.lua", "local x = 'kept'", Options{}); err != nil || !hit {
		t.Errorf("after reopen: hit = %v, err = %v", hit, err)
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Len(); n != 0 {
		t.Errorf("Len after Clear = %d", n)
	}
}

func TestConcurrentCompile(t *testing.T) {
	c := openTestCache(t)
	sources := []string{"local a = 1", "local b = 2", "local c = 3", "local d = 'four'"}

	var wg sync.WaitGroup
	errs := make(chan error, len(sources)*4)
	for round := 0; round < 4; round++ {
		for _, src := range sources {
			wg.Add(1)
			go func(src string) {
				defer wg.Done()
				p, _, err := c.Compile("conc.lua", src, Options{})
				if err == nil && p.CodeLen() == 0 {
					err = errors.New("empty prototype")
				}
				errs <- err
			}(src)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Compile: %v", err)
		}
	}
	if n, _ := c.Len(); n != len(sources) {
		t.Errorf("Len = %d, want %d", n, len(sources))
	}
}
