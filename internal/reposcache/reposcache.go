// Package reposcache is the read-mostly repo-context cache keyed by
// {repoURL, headSHA}. Analysis/Decomposition re-fetch the same workflow
// file content, repo manifest, and fault-localization flag on every tick
// of the same group and across sibling groups pointed at the same commit;
// this cache lets the Supervisor share one fetch per (repo, commit) pair
// instead of repeating it per group.
//
// Grounded on two corpus sources: the teacher's cxdb_sink.go, which hashes
// artifact bytes with blake3 to derive a content-addressed key
// (internal/attractor/engine/cxdb_sink.go), generalized here to hash the
// (repoURL, headSHA) pair into the cache key instead of a blob's bytes;
// and opentofu's plugin-tofu/provider_client.go, which msgpack-marshals
// request/response structs across a subprocess boundary, generalized here
// to marshal a cached Context for on-disk persistence between runs of the
// same repo.
package reposcache

import (
	"encoding/hex"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
)

// Context is the per-commit repo information the Diagnosis Pipeline needs
// and that is expensive or slow to refetch: the workflow file contents,
// a repo manifest, and whether fault localization is available for this
// commit. Field names mirror diagnosis.Deps so callers can copy
// a cached Context straight onto those deps.
type Context struct {
	WorkflowFileContent string
	RepoManifest        string
	FaultLocalization   bool
}

// Cache is a sync.Map-backed {repoURL, headSHA} -> Context cache. The zero
// value is ready to use.
type Cache struct {
	m sync.Map
}

// Key derives the cache key for a (repoURL, headSHA) pair by hashing their
// concatenation with blake3, the same hash the teacher uses for its
// content-addressed artifact store. Using a hash rather than the raw
// "repoURL\x00headSHA" string keeps the key a fixed, short, comparable
// value regardless of how long repoURL gets.
func Key(repoURL, headSHA string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(repoURL))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(headSHA))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached Context for (repoURL, headSHA), if present.
func (c *Cache) Get(repoURL, headSHA string) (Context, bool) {
	v, ok := c.m.Load(Key(repoURL, headSHA))
	if !ok {
		return Context{}, false
	}
	return v.(Context), true
}

// Put stores ctx under (repoURL, headSHA), overwriting any prior entry.
func (c *Cache) Put(repoURL, headSHA string, ctx Context) {
	c.m.Store(Key(repoURL, headSHA), ctx)
}

// GetOrFetch returns the cached Context for (repoURL, headSHA), calling
// fetch and storing its result the first time this pair is seen. Two
// concurrent groups racing the same uncached (repoURL, headSHA) may both
// call fetch once; the cache keeps whichever result is stored last, which
// is acceptable since both fetches observe the same commit.
func (c *Cache) GetOrFetch(repoURL, headSHA string, fetch func() (Context, error)) (Context, error) {
	if ctx, ok := c.Get(repoURL, headSHA); ok {
		return ctx, nil
	}
	ctx, err := fetch()
	if err != nil {
		return Context{}, err
	}
	c.Put(repoURL, headSHA, ctx)
	return ctx, nil
}

// SaveToDisk msgpack-marshals one (repoURL, headSHA) entry to path, so a
// later process (or a later ci-repair invocation against the same commit)
// can skip refetching it entirely via LoadFromDisk.
func (c *Cache) SaveToDisk(path, repoURL, headSHA string) error {
	ctx, ok := c.Get(repoURL, headSHA)
	if !ok {
		return os.ErrNotExist
	}
	data, err := msgpack.Marshal(ctx)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadFromDisk msgpack-unmarshals a Context previously written by
// SaveToDisk and stores it under (repoURL, headSHA).
func (c *Cache) LoadFromDisk(path, repoURL, headSHA string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ctx Context
	if err := msgpack.Unmarshal(data, &ctx); err != nil {
		return err
	}
	c.Put(repoURL, headSHA, ctx)
	return nil
}
