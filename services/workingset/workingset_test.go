package workingset

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/customeros/codewatch/internal/enum"
	"github.com/customeros/codewatch/internal/models"
)

func record(account, id string, ts int64, category enum.Category) models.EmailRecord {
	return models.EmailRecord{ID: id, Account: account, Timestamp: ts, Category: category}
}

func ids(records []models.EmailRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Account+"/"+r.ID)
	}
	return out
}

func TestMergeNew_IsIdempotent(t *testing.T) {
	ws := New()
	batch := []models.EmailRecord{
		record("a", "1", 100, enum.CategorySignInCode),
		record("a", "2", 200, enum.CategoryHouseholdUpdate),
	}

	first := ws.MergeNew(batch)
	second := ws.MergeNew(batch)

	assert.Len(t, first, 2)
	assert.Empty(t, second)
	assert.Equal(t, 2, ws.Len())
}

func TestMergeNew_SameIDDifferentAccountsAreDistinct(t *testing.T) {
	ws := New()

	added := ws.MergeNew([]models.EmailRecord{
		record("a", "1", 100, enum.CategorySignInCode),
		record("b", "1", 100, enum.CategorySignInCode),
	})

	assert.Len(t, added, 2)
}

func TestMergeNew_DuplicatesWithinBatch(t *testing.T) {
	ws := New()

	added := ws.MergeNew([]models.EmailRecord{
		record("a", "1", 100, enum.CategorySignInCode),
		record("a", "1", 100, enum.CategorySignInCode),
	})

	assert.Len(t, added, 1)
	assert.Equal(t, 1, ws.Len())
}

func TestMergeNew_ReturnsInputOrderAndKeepsSetSorted(t *testing.T) {
	ws := New()
	ws.MergeNew([]models.EmailRecord{record("a", "old", 100, enum.CategorySignInCode)})

	added := ws.MergeNew([]models.EmailRecord{
		record("a", "x", 50, enum.CategorySignInCode),
		record("a", "y", 300, enum.CategorySignInCode),
	})

	assert.Equal(t, []string{"a/x", "a/y"}, ids(added))
	assert.Equal(t, []string{"a/y", "a/old", "a/x"}, ids(ws.Snapshot()))
}

func TestOrdering_TiesKeepDiscoveryOrder(t *testing.T) {
	ws := New()
	ws.MergeNew([]models.EmailRecord{record("a", "first", 0, enum.CategorySignInCode)})
	ws.MergeNew([]models.EmailRecord{record("a", "second", 0, enum.CategorySignInCode)})
	ws.MergeNew([]models.EmailRecord{record("a", "third", 0, enum.CategorySignInCode)})

	assert.Equal(t, []string{"a/first", "a/second", "a/third"}, ids(ws.Snapshot()))
}

func TestReplaceWith_ReportsOnlyNewRecords(t *testing.T) {
	ws := New()
	ws.MergeNew([]models.EmailRecord{
		record("a", "1", 100, enum.CategorySignInCode),
		record("a", "2", 200, enum.CategorySignInCode),
	})

	added := ws.ReplaceWith([]models.EmailRecord{
		record("a", "2", 200, enum.CategorySignInCode),
		record("a", "3", 300, enum.CategoryHouseholdUpdate),
	})

	assert.Equal(t, []string{"a/3"}, ids(added))
	assert.Equal(t, []string{"a/3", "a/2"}, ids(ws.Snapshot()))

	// the dropped record counts as new again if it reappears
	again := ws.MergeNew([]models.EmailRecord{record("a", "1", 100, enum.CategorySignInCode)})
	assert.Len(t, again, 1)
}

func TestReplaceWith_TiesKeepInsertionOrder(t *testing.T) {
	ws := New()
	ws.MergeNew([]models.EmailRecord{record("a", "b", 100, enum.CategorySignInCode)})
	ws.MergeNew([]models.EmailRecord{record("a", "a", 100, enum.CategorySignInCode)})

	added := ws.ReplaceWith([]models.EmailRecord{
		record("a", "a", 100, enum.CategorySignInCode),
		record("a", "b", 100, enum.CategorySignInCode),
		record("a", "c", 100, enum.CategorySignInCode),
	})

	assert.Equal(t, []string{"a/c"}, ids(added))
	assert.Equal(t, []string{"a/b", "a/a", "a/c"}, ids(ws.Snapshot()))

	ws.MergeNew([]models.EmailRecord{record("a", "d", 100, enum.CategorySignInCode)})
	assert.Equal(t, []string{"a/b", "a/a", "a/c", "a/d"}, ids(ws.Snapshot()))
}

func TestReplaceWith_Empty(t *testing.T) {
	ws := New()
	ws.MergeNew([]models.EmailRecord{record("a", "1", 100, enum.CategorySignInCode)})

	added := ws.ReplaceWith(nil)

	assert.Empty(t, added)
	assert.Equal(t, 0, ws.Len())
}

func TestFilter(t *testing.T) {
	ws := New()
	ws.MergeNew([]models.EmailRecord{
		record("a", "1", 100, enum.CategorySignInCode),
		record("b", "2", 200, enum.CategoryHouseholdUpdate),
		record("a", "3", 300, enum.CategoryHouseholdUpdate),
	})

	assert.Equal(t, []string{"a/3", "b/2"}, ids(ws.Filter(enum.CategoryHouseholdUpdate, "")))
	assert.Equal(t, []string{"a/3", "a/1"}, ids(ws.Filter(enum.CategoryNone, "a")))
	assert.Equal(t, []string{"a/3"}, ids(ws.Filter(enum.CategoryHouseholdUpdate, "a")))
	assert.Empty(t, ws.Filter(enum.CategoryTemporaryAccessCode, ""))
}

func TestFilter_ReturnsCopy(t *testing.T) {
	ws := New()
	ws.MergeNew([]models.EmailRecord{record("a", "1", 100, enum.CategorySignInCode)})

	snapshot := ws.Snapshot()
	snapshot[0].Payload = "mutated"

	assert.Equal(t, "", ws.Snapshot()[0].Payload)
}

func TestStats(t *testing.T) {
	ws := New()
	ws.MergeNew([]models.EmailRecord{
		record("a", "1", 100, enum.CategorySignInCode),
		record("b", "2", 200, enum.CategoryHouseholdUpdate),
		record("a", "3", 300, enum.CategoryHouseholdUpdate),
	})

	stats := ws.Stats()

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByCategory[enum.CategoryHouseholdUpdate])
	assert.Equal(t, 1, stats.ByCategory[enum.CategorySignInCode])
	assert.Equal(t, 2, stats.ByAccount["a"])
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	ws := New()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			ws.MergeNew([]models.EmailRecord{record("a", fmt.Sprint(i), int64(i), enum.CategorySignInCode)})
			if i%50 == 0 {
				ws.ReplaceWith(ws.Snapshot())
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snapshot := ws.Snapshot()
				for j := 1; j < len(snapshot); j++ {
					assert.GreaterOrEqual(t, snapshot[j-1].Timestamp, snapshot[j].Timestamp)
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 200, ws.Len())
}
