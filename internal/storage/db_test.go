package storage

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// testDB runs the shared suite against a DB implementation.
func testDB(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) {
		if err := db.Put([]byte("key1"), []byte("value1")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		val, err := db.Get([]byte("key1"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(val, []byte("value1")) {
			t.Errorf("Get = %q, want %q", val, "value1")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get on missing key = %v, want ErrNotFound", err)
		}
	})

	t.Run("Has", func(t *testing.T) {
		db.Put([]byte("exists"), []byte("yes"))
		if ok, _ := db.Has([]byte("exists")); !ok {
			t.Error("Has = false for existing key")
		}
		if ok, _ := db.Has([]byte("absent")); ok {
			t.Error("Has = true for missing key")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		db.Put([]byte("ow"), []byte("first"))
		db.Put([]byte("ow"), []byte("second"))
		val, _ := db.Get([]byte("ow"))
		if !bytes.Equal(val, []byte("second")) {
			t.Errorf("Get after overwrite = %q", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db.Put([]byte("del"), []byte("value"))
		if err := db.Delete([]byte("del")); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := db.Get([]byte("del")); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get after delete = %v, want ErrNotFound", err)
		}
	})

	t.Run("ForEachPrefix", func(t *testing.T) {
		db.Put([]byte("it/a"), []byte("1"))
		db.Put([]byte("it/b"), []byte("2"))
		db.Put([]byte("other"), []byte("3"))

		count := 0
		err := db.ForEach([]byte("it/"), func(key, value []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach: %v", err)
		}
		if count != 2 {
			t.Errorf("ForEach visited %d keys, want 2", count)
		}
	})
}

// testBatch runs the batch suite against a Batcher implementation.
func testBatch(t *testing.T, db interface {
	DB
	Batcher
}) {
	t.Helper()

	t.Run("BatchCommit", func(t *testing.T) {
		b := db.NewBatch()
		for i := 0; i < 10; i++ {
			if err := b.Put([]byte(fmt.Sprintf("b/%d", i)), []byte{byte(i)}); err != nil {
				t.Fatalf("batch put: %v", err)
			}
		}
		// Nothing lands before Commit.
		if ok, _ := db.Has([]byte("b/0")); ok {
			t.Fatal("batch write visible before commit")
		}
		if err := b.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
		for i := 0; i < 10; i++ {
			if ok, _ := db.Has([]byte(fmt.Sprintf("b/%d", i))); !ok {
				t.Fatalf("batch key %d missing after commit", i)
			}
		}
	})

	t.Run("BatchDelete", func(t *testing.T) {
		db.Put([]byte("bd"), []byte("x"))
		b := db.NewBatch()
		if err := b.Delete([]byte("bd")); err != nil {
			t.Fatalf("batch delete: %v", err)
		}
		if err := b.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
		if ok, _ := db.Has([]byte("bd")); ok {
			t.Error("key survived batched delete")
		}
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
	testBatch(t, db)
}

func TestMemoryDBCopiesValues(t *testing.T) {
	db := NewMemory()
	defer db.Close()

	val := []byte("original")
	db.Put([]byte("k"), val)
	val[0] = 'X'

	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("original")) {
		t.Errorf("stored value aliased caller's slice: %q", got)
	}
}

func TestPrefixDB(t *testing.T) {
	inner := NewMemory()
	defer inner.Close()
	testDB(t, NewPrefixDB(inner, []byte("ns1/")))
}

func TestPrefixDBIsolation(t *testing.T) {
	inner := NewMemory()
	defer inner.Close()
	a := NewPrefixDB(inner, []byte("a/"))
	b := NewPrefixDB(inner, []byte("b/"))

	a.Put([]byte("key"), []byte("from-a"))
	b.Put([]byte("key"), []byte("from-b"))

	got, _ := a.Get([]byte("key"))
	if !bytes.Equal(got, []byte("from-a")) {
		t.Errorf("namespace a sees %q", got)
	}
	if err := a.Delete([]byte("key")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := b.Has([]byte("key")); !ok {
		t.Error("delete in namespace a leaked into b")
	}
}

func TestPrefixDBForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	defer inner.Close()
	db := NewPrefixDB(inner, []byte("ns/"))
	db.Put([]byte("x"), []byte("1"))

	err := db.ForEach(nil, func(key, value []byte) error {
		if !bytes.Equal(key, []byte("x")) {
			t.Errorf("callback key = %q, want logical key", key)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
}
