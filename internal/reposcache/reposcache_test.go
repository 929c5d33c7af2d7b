package reposcache

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestKeyIsStableAndDistinguishesInputs(t *testing.T) {
	k1 := Key("https://example.com/a.git", "sha1")
	k2 := Key("https://example.com/a.git", "sha1")
	if k1 != k2 {
		t.Fatalf("Key is not deterministic: %q != %q", k1, k2)
	}

	k3 := Key("https://example.com/a.git", "sha2")
	if k1 == k3 {
		t.Fatal("Key did not change when headSHA changed")
	}

	k4 := Key("https://example.com/b.git", "sha1")
	if k1 == k4 {
		t.Fatal("Key did not change when repoURL changed")
	}
}

func TestCacheGetMissThenPutThenHit(t *testing.T) {
	var c Cache
	if _, ok := c.Get("repo", "sha"); ok {
		t.Fatal("expected a miss on an empty cache")
	}

	want := Context{WorkflowFileContent: "wf", RepoManifest: "manifest", FaultLocalization: true}
	c.Put("repo", "sha", want)

	got, ok := c.Get("repo", "sha")
	if !ok {
		t.Fatal("expected a hit after Put")
	}
	if got != want {
		t.Fatalf("Get = %+v, want %+v", got, want)
	}
}

func TestCacheGetOrFetchOnlyCallsFetchOnce(t *testing.T) {
	var c Cache
	calls := 0
	fetch := func() (Context, error) {
		calls++
		return Context{RepoManifest: "m"}, nil
	}

	for i := 0; i < 3; i++ {
		ctx, err := c.GetOrFetch("repo", "sha", fetch)
		if err != nil {
			t.Fatalf("GetOrFetch returned error: %v", err)
		}
		if ctx.RepoManifest != "m" {
			t.Fatalf("RepoManifest = %q, want %q", ctx.RepoManifest, "m")
		}
	}
	if calls != 1 {
		t.Fatalf("fetch called %d times, want 1", calls)
	}
}

func TestCacheGetOrFetchPropagatesFetchError(t *testing.T) {
	var c Cache
	wantErr := errors.New("fetch failed")
	_, err := c.GetOrFetch("repo", "sha", func() (Context, error) {
		return Context{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("GetOrFetch error = %v, want %v", err, wantErr)
	}
	if _, ok := c.Get("repo", "sha"); ok {
		t.Fatal("a failed fetch must not populate the cache")
	}
}

func TestSaveToDiskThenLoadFromDiskRoundTrip(t *testing.T) {
	var c Cache
	want := Context{WorkflowFileContent: "wf", RepoManifest: "manifest", FaultLocalization: true}
	c.Put("repo", "sha", want)

	path := filepath.Join(t.TempDir(), "entry.msgpack")
	if err := c.SaveToDisk(path, "repo", "sha"); err != nil {
		t.Fatalf("SaveToDisk returned error: %v", err)
	}

	var loaded Cache
	if err := loaded.LoadFromDisk(path, "other-repo", "other-sha"); err != nil {
		t.Fatalf("LoadFromDisk returned error: %v", err)
	}
	got, ok := loaded.Get("other-repo", "other-sha")
	if !ok {
		t.Fatal("expected a hit under the key LoadFromDisk was called with")
	}
	if got != want {
		t.Fatalf("loaded = %+v, want %+v", got, want)
	}
}

func TestSaveToDiskMissingEntryReturnsError(t *testing.T) {
	var c Cache
	path := filepath.Join(t.TempDir(), "entry.msgpack")
	if err := c.SaveToDisk(path, "repo", "sha"); err == nil {
		t.Fatal("expected an error saving an entry that was never Put")
	}
}
