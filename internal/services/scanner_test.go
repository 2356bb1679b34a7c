package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/Archivarr/internal/clock"
	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/testutil"
)

func candidateIDs(items []domain.CandidateItem) []string {
	ids := make([]string, len(items))
	for i, c := range items {
		ids[i] = c.ID
	}
	return ids
}

func listingCalls(client *testutil.FakeVaultClient) []string {
	return client.CallsMatching(func(m string) bool { return m == "ListCollectionContents" })
}

func (e *testEnv) scanner() *ScannerService {
	return NewScannerService(e.client, e.events, clock.NewFakeClock(time.Now()), e.cfg)
}

// =============================================================================
// Traversal
// =============================================================================

func TestScanner_DepthFirstPageOrder(t *testing.T) {
	e := newTestEnv(t)
	e.client.AddCollection("c1",
		testutil.AssetObject("a1", domain.StatusNotArchived),
		testutil.CollectionObject("c2"),
		testutil.AssetObject("a2", domain.StatusArchived),
		testutil.AssetObject("a3", domain.StatusFailed),
	)
	e.client.AddCollection("c2", testutil.AssetObject("b1", domain.StatusArchiving))

	result, err := e.scanner().Scan(context.Background(), []string{"c1"})
	require.NoError(t, err)

	// The child container is walked before page 2 of its parent.
	assert.Equal(t, []string{"a1", "b1", "a3"}, candidateIDs(result.Candidates))
	assert.Equal(t, []string{
		"ListCollectionContents c1 1",
		"ListCollectionContents c2 1",
		"ListCollectionContents c1 2",
	}, listingCalls(e.client))
	assert.Equal(t, 3, result.Pages)
	assert.Empty(t, result.FailedContainers)
}

func TestScanner_CandidateFields(t *testing.T) {
	e := newTestEnv(t)
	e.client.AddCollection("c1", testutil.AssetObject("a1", domain.StatusFailed))

	result, err := e.scanner().Scan(context.Background(), []string{"c1"})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)

	got := result.Candidates[0]
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, "asset a1", got.Label)
	assert.Equal(t, domain.StatusFailed, got.ContainerObservedStatus)
	assert.Equal(t, "c1", got.ContainerID)

	events := e.bus.GetEvents(domain.CandidateFound)
	require.Len(t, events, 1)
	assert.Equal(t, "a1", events[0].AggregateID)
	assert.Equal(t, testRunID, events[0].RunID)
}

func TestScanner_DedupAcrossRoots(t *testing.T) {
	e := newTestEnv(t)
	e.client.AddCollection("c1", testutil.AssetObject("a1", domain.StatusNotArchived))
	e.client.AddCollection("c2",
		testutil.AssetObject("a1", domain.StatusNotArchived),
		testutil.AssetObject("a2", domain.StatusNotArchived),
	)

	result, err := e.scanner().Scan(context.Background(), []string{"c1", "c2", "c1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "a2"}, candidateIDs(result.Candidates))
	assert.Equal(t, 2, e.bus.EventCount(domain.CandidateFound))
	// c1 is listed once even though it was given twice.
	assert.Len(t, listingCalls(e.client), 2)
}

func TestScanner_CycleTerminates(t *testing.T) {
	e := newTestEnv(t)
	e.client.AddCollection("c1", testutil.CollectionObject("c2"))
	e.client.AddCollection("c2", testutil.CollectionObject("c1"), testutil.AssetObject("a1", domain.StatusNotArchived))

	result, err := e.scanner().Scan(context.Background(), []string{"c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, candidateIDs(result.Candidates))
}

func TestScanner_DepthCap(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.MaxDepth = 3
	e.cfg.PageSize = 10
	for i := 1; i <= 12; i++ {
		e.client.AddCollection(fmt.Sprintf("c%d", i),
			testutil.AssetObject(fmt.Sprintf("a%d", i), domain.StatusNotArchived),
			testutil.CollectionObject(fmt.Sprintf("c%d", i+1)),
		)
	}

	result, err := e.scanner().Scan(context.Background(), []string{"c1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "a2", "a3"}, candidateIDs(result.Candidates))
	assert.Len(t, listingCalls(e.client), 3)
}

func TestScanner_SharedContainerReachedShallowerLater(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.MaxDepth = 3
	e.cfg.PageSize = 10
	// "shared" is first reached at depth 3 through "deep", where its child is
	// past the limit, and then at depth 2 straight from the root.
	e.client.AddCollection("root", testutil.CollectionObject("deep"), testutil.CollectionObject("shared"))
	e.client.AddCollection("deep", testutil.CollectionObject("shared"))
	e.client.AddCollection("shared",
		testutil.AssetObject("a-shared", domain.StatusNotArchived),
		testutil.CollectionObject("leaf"),
	)
	e.client.AddCollection("leaf", testutil.AssetObject("a-leaf", domain.StatusFailed))

	result, err := e.scanner().Scan(context.Background(), []string{"root"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a-shared", "a-leaf"}, candidateIDs(result.Candidates))
	assert.Equal(t, []string{
		"ListCollectionContents root 1",
		"ListCollectionContents deep 1",
		"ListCollectionContents shared 1",
		"ListCollectionContents shared 1",
		"ListCollectionContents leaf 1",
	}, listingCalls(e.client))
}

// =============================================================================
// Failure handling
// =============================================================================

func TestScanner_FailedSubtreeIsAbandoned(t *testing.T) {
	e := newTestEnv(t)
	e.client.AddCollection("c1",
		testutil.CollectionObject("c2"),
		testutil.CollectionObject("c3"),
		testutil.AssetObject("a1", domain.StatusNotArchived),
	)
	e.client.AddCollection("c2", testutil.AssetObject("lost", domain.StatusNotArchived))
	e.client.AddCollection("c3", testutil.AssetObject("a3", domain.StatusNotArchived))
	e.client.FailOn("ListCollectionContents", "c2", errors.New("connection reset"))

	result, err := e.scanner().Scan(context.Background(), []string{"c1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a3", "a1"}, candidateIDs(result.Candidates))
	assert.Equal(t, []string{"c2"}, result.FailedContainers)

	failed := e.bus.GetEvents(domain.ContainerFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "c2", failed[0].AggregateID)
	assert.True(t, strings.Contains(failed[0].GetStringOr("error", ""), "connection reset"))
}

func TestScanner_FailingRootDoesNotStopOtherRoots(t *testing.T) {
	e := newTestEnv(t)
	e.client.AddCollection("good", testutil.AssetObject("a1", domain.StatusNotArchived))

	// "missing" does not exist, so the fake answers 404.
	result, err := e.scanner().Scan(context.Background(), []string{"missing", "good"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a1"}, candidateIDs(result.Candidates))
	assert.Equal(t, []string{"missing"}, result.FailedContainers)
}

func TestScanner_CancelledContext(t *testing.T) {
	e := newTestEnv(t)
	e.client.AddCollection("c1", testutil.AssetObject("a1", domain.StatusNotArchived))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.scanner().Scan(ctx, []string{"c1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listingCalls(e.client))
}

// =============================================================================
// Throttling
// =============================================================================

func TestScanner_PausesEveryFewPages(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.PageSize = 2
	e.cfg.PauseEveryPages = 2
	e.cfg.PagePause = time.Second
	var objects []domain.ContentObject
	for i := 0; i < 10; i++ {
		objects = append(objects, testutil.AssetObject(fmt.Sprintf("a%d", i), domain.StatusNotArchived))
	}
	e.client.AddCollection("c1", objects...)

	clk := clock.NewFakeClock(time.Now())
	result, err := NewScannerService(e.client, e.events, clk, e.cfg).Scan(context.Background(), []string{"c1"})
	require.NoError(t, err)

	assert.Len(t, result.Candidates, 10)
	assert.Equal(t, 5, result.Pages)
	// After pages 2 and 4; page 5 is the last, so no pause follows it.
	assert.Equal(t, 2, clk.DelayCount())
	for _, d := range clk.Delays {
		assert.Equal(t, time.Second, d)
	}
}
