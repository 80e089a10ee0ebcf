package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"bdrtools/internal/bdr"
	"bdrtools/internal/testsupport"
)

type scanEnv struct {
	t      *testing.T
	repo   *testsupport.FakeRepo
	client *bdr.Client
	output string
}

func newScanEnv(t *testing.T) *scanEnv {
	t.Helper()
	repo := testsupport.NewFakeRepo(t)
	client := bdr.New(bdr.Config{BaseURL: repo.URL()}, bdr.WithSleeper(func(time.Duration) {}))
	return &scanEnv{
		t:      t,
		repo:   repo,
		client: client,
		output: filepath.Join(t.TempDir(), "collections.json"),
	}
}

func (e *scanEnv) scanner(opts ...Option) *Scanner {
	return NewScanner(e.client, e.output, opts...)
}

func (e *scanEnv) readOutput() []Entry {
	e.t.Helper()
	data, err := os.ReadFile(e.output)
	if err != nil {
		e.t.Fatalf("read output: %v", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		e.t.Fatalf("parse output: %v", err)
	}
	return entries
}

func searchDoc(pid string, collections, parents []string) map[string]any {
	doc := map[string]any{"pid": pid}
	if len(collections) > 0 {
		doc["rel_is_member_of_collection_ssim"] = collections
	}
	if len(parents) > 0 {
		doc["rel_is_part_of_ssim"] = parents
	}
	return doc
}

func parentItem(collections ...string) string {
	parts := make([]string, 0, len(collections))
	for _, pid := range collections {
		parts = append(parts, fmt.Sprintf(`{"pid":%q}`, pid))
	}
	return fmt.Sprintf(`{"relations":{"isMemberOfCollection":[%s]}}`, strings.Join(parts, ","))
}

func TestScannerAggregatesDirectMemberships(t *testing.T) {
	env := newScanEnv(t)
	env.repo.AddCollection("test:c1", `{"name":"First Collection"}`)
	env.repo.AddCollection("test:c2", `{"name":"Second Collection"}`)
	env.repo.SetSearchDocs(
		searchDoc("test:a", []string{"test:c1"}, nil),
		searchDoc("test:b", []string{"test:c1", "test:c2"}, nil),
		searchDoc("test:c", []string{"test:c2"}, nil),
	)

	var steps [][2]int
	result, err := env.scanner(WithPageRows(2), WithProgress(func(done, total int) {
		steps = append(steps, [2]int{done, total})
	})).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Items != 3 || result.Collections != 2 || result.NumFound != 3 || result.Resumed {
		t.Fatalf("result: %+v", result)
	}

	entries := env.readOutput()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].CollectionPID != "test:c1" || entries[1].CollectionPID != "test:c2" {
		t.Fatalf("entries not sorted by pid: %+v", entries)
	}
	if entries[0].Count != 2 || entries[1].Count != 2 {
		t.Fatalf("counts wrong: %+v", entries)
	}
	if entries[0].PrimaryTitle != "First Collection" {
		t.Fatalf("title = %q", entries[0].PrimaryTitle)
	}
	if entries[0].FullCollectionAPIURL != env.repo.URL()+"/api/collections/test:c1/" {
		t.Fatalf("api url = %q", entries[0].FullCollectionAPIURL)
	}
	if entries[0].FullCollectionStudioURL != env.repo.URL()+"/studio/collections/test:c1/" {
		t.Fatalf("studio url = %q", entries[0].FullCollectionStudioURL)
	}

	if len(steps) == 0 || steps[len(steps)-1] != [2]int{3, 3} {
		t.Fatalf("progress steps = %v", steps)
	}
}

func TestScannerResolvesParentsOnceViaCache(t *testing.T) {
	env := newScanEnv(t)
	env.repo.AddCollection("test:c1", `{"name":"Via Parent"}`)
	env.repo.AddItem("test:parent", parentItem("test:c1"))
	env.repo.SetSearchDocs(
		searchDoc("test:a", nil, []string{"test:parent"}),
		searchDoc("test:b", nil, []string{"test:parent"}),
	)

	result, err := env.scanner().Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Collections != 1 {
		t.Fatalf("collections = %d", result.Collections)
	}

	entries := env.readOutput()
	if len(entries) != 1 || entries[0].Count != 2 {
		t.Fatalf("entries: %+v", entries)
	}
	if got := env.repo.Requests(testsupport.ItemPath("test:parent")); got != 1 {
		t.Fatalf("parent fetched %d times, want 1 (cache miss only)", got)
	}
}

func TestScannerDeniedParentContributesNothing(t *testing.T) {
	env := newScanEnv(t)
	env.repo.ForceStatus(testsupport.ItemPath("test:parent"), 403)
	env.repo.SetSearchDocs(
		searchDoc("test:a", nil, []string{"test:parent"}),
		searchDoc("test:b", nil, []string{"test:parent"}),
	)

	result, err := env.scanner().Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Collections != 0 || result.Items != 2 {
		t.Fatalf("result: %+v", result)
	}
	if entries := env.readOutput(); len(entries) != 0 {
		t.Fatalf("entries: %+v", entries)
	}
	// The denied answer is cached, so the second hit costs nothing.
	if got := env.repo.Requests(testsupport.ItemPath("test:parent")); got != 1 {
		t.Fatalf("denied parent fetched %d times, want 1", got)
	}
}

func TestScannerResumesFromCheckpoint(t *testing.T) {
	env := newScanEnv(t)
	env.repo.AddCollection("test:c1", `{"name":"First"}`)
	env.repo.AddCollection("test:c2", `{"name":"Second"}`)
	env.repo.AddItem("test:boom", parentItem("test:c2"))
	env.repo.ForceStatus(testsupport.ItemPath("test:boom"), 500)
	env.repo.SetSearchDocs(
		searchDoc("test:a", []string{"test:c1"}, nil),
		searchDoc("test:b", []string{"test:c1"}, nil),
		searchDoc("test:c", nil, []string{"test:boom"}),
	)

	if _, err := env.scanner(WithPageRows(2)).Run(context.Background()); err == nil {
		t.Fatal("expected the parent failure to abort the scan")
	}
	if _, err := os.Stat(env.output + ".checkpoint"); err != nil {
		t.Fatalf("checkpoint missing after abort: %v", err)
	}
	searchesAfterFirst := env.repo.Requests("/api/search/")

	env.repo.ClearStatus(testsupport.ItemPath("test:boom"))
	result, err := env.scanner(WithPageRows(2)).Run(context.Background())
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if !result.Resumed {
		t.Fatal("second run did not resume from checkpoint")
	}

	// Only the failed page is refetched.
	if got := env.repo.Requests("/api/search/"); got != searchesAfterFirst+1 {
		t.Fatalf("search requests = %d, want %d", got, searchesAfterFirst+1)
	}

	entries := env.readOutput()
	if len(entries) != 2 {
		t.Fatalf("entries: %+v", entries)
	}
	if entries[0].CollectionPID != "test:c1" || entries[0].Count != 2 {
		t.Fatalf("first page counts were redone: %+v", entries[0])
	}
	if entries[1].CollectionPID != "test:c2" || entries[1].Count != 1 {
		t.Fatalf("resumed page missing: %+v", entries[1])
	}
}

func TestScannerCompletedCheckpointSkipsSearch(t *testing.T) {
	env := newScanEnv(t)
	env.repo.AddCollection("test:c1", `{"name":"Only"}`)
	env.repo.SetSearchDocs(searchDoc("test:a", []string{"test:c1"}, nil))

	if _, err := env.scanner().Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	searches := env.repo.Requests("/api/search/")

	result, err := env.scanner().Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !result.Resumed || result.Collections != 1 {
		t.Fatalf("result: %+v", result)
	}
	if got := env.repo.Requests("/api/search/"); got != searches {
		t.Fatalf("completed scan searched again: %d vs %d", got, searches)
	}
}

func TestScannerDoesNotDoubleCountRepeatedHits(t *testing.T) {
	env := newScanEnv(t)
	env.repo.AddCollection("test:c1", `{"name":"Only"}`)
	env.repo.SetSearchFunc(func(q, fq string, start, rows int) (int, []map[string]any) {
		// Both pages return the same document.
		if start == 0 {
			return 2, []map[string]any{searchDoc("test:a", []string{"test:c1"}, nil)}
		}
		return 2, []map[string]any{searchDoc("test:a", []string{"test:c1"}, nil)}
	})

	result, err := env.scanner(WithPageRows(1)).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Items != 1 {
		t.Fatalf("items = %d, want 1", result.Items)
	}
	entries := env.readOutput()
	if len(entries) != 1 || entries[0].Count != 1 {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestScannerTitleFetchErrorLeavesTitleEmpty(t *testing.T) {
	env := newScanEnv(t)
	env.repo.ForceStatus(testsupport.CollectionPath("test:c1"), 500)
	env.repo.SetSearchDocs(searchDoc("test:a", []string{"test:c1"}, nil))

	result, err := env.scanner().Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Collections != 1 {
		t.Fatalf("collections = %d", result.Collections)
	}
	entries := env.readOutput()
	if entries[0].PrimaryTitle != "" || entries[0].Count != 1 {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestScannerEmptyRepositoryWritesEmptyList(t *testing.T) {
	env := newScanEnv(t)
	env.repo.SetSearchDocs()

	result, err := env.scanner().Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Items != 0 || result.Collections != 0 {
		t.Fatalf("result: %+v", result)
	}
	data, err := os.ReadFile(env.output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("output = %q, want empty list", data)
	}
}

func TestScannerRejectsConcurrentScan(t *testing.T) {
	env := newScanEnv(t)
	env.repo.SetSearchDocs()

	scanner := env.scanner()
	holder := flock.New(scanner.LockPath())
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-lock: %v %v", locked, err)
	}

	if _, err := scanner.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("err = %v, want lock rejection", err)
	}

	if err := holder.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := scanner.Run(context.Background()); err != nil {
		t.Fatalf("run after unlock: %v", err)
	}
}
