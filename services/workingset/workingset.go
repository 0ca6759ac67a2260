package workingset

import (
	"slices"
	"sync"

	"github.com/customeros/codewatch/internal/enum"
	"github.com/customeros/codewatch/internal/models"
)

// WorkingSet is the deduplicated, newest-first collection of classified
// records. Readers always see a consistent snapshot.
type WorkingSet struct {
	mu      sync.RWMutex
	records []models.EmailRecord
	// index maps each key to its insertion sequence, the tie-breaker for
	// equal timestamps.
	index   map[models.RecordKey]uint64
	nextSeq uint64
}

func New() *WorkingSet {
	return &WorkingSet{index: make(map[models.RecordKey]uint64)}
}

// MergeNew adds records whose key is not present yet and returns them in
// input order. Merging the same batch twice returns nothing the second time.
func (w *WorkingSet) MergeNew(records []models.EmailRecord) []models.EmailRecord {
	w.mu.Lock()
	defer w.mu.Unlock()

	var added []models.EmailRecord
	for _, record := range records {
		key := record.Key()
		if _, exists := w.index[key]; exists {
			continue
		}
		w.index[key] = w.takeSeq()
		added = append(added, record)
	}
	if len(added) == 0 {
		return nil
	}

	merged := make([]models.EmailRecord, 0, len(w.records)+len(added))
	merged = append(merged, w.records...)
	merged = append(merged, added...)
	sortNewestFirst(merged, w.index)
	w.records = merged

	return added
}

// ReplaceWith installs records as the new baseline and returns those that
// were not in the previous set. Records present before keep their place
// among equal timestamps.
func (w *WorkingSet) ReplaceWith(records []models.EmailRecord) []models.EmailRecord {
	w.mu.Lock()
	defer w.mu.Unlock()

	replacement := make([]models.EmailRecord, 0, len(records))
	index := make(map[models.RecordKey]uint64, len(records))
	var added []models.EmailRecord
	for _, record := range records {
		key := record.Key()
		if _, dup := index[key]; dup {
			continue
		}
		if seq, existed := w.index[key]; existed {
			index[key] = seq
		} else {
			index[key] = w.takeSeq()
			added = append(added, record)
		}
		replacement = append(replacement, record)
	}

	sortNewestFirst(replacement, index)
	w.records = replacement
	w.index = index

	return added
}

func (w *WorkingSet) takeSeq() uint64 {
	seq := w.nextSeq
	w.nextSeq++
	return seq
}

// Filter returns matching records newest first. An empty category or account
// matches everything.
func (w *WorkingSet) Filter(category enum.Category, account string) []models.EmailRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := make([]models.EmailRecord, 0, len(w.records))
	for _, record := range w.records {
		if category != enum.CategoryNone && record.Category != category {
			continue
		}
		if account != "" && record.Account != account {
			continue
		}
		result = append(result, record)
	}
	return result
}

func (w *WorkingSet) Snapshot() []models.EmailRecord {
	return w.Filter(enum.CategoryNone, "")
}

func (w *WorkingSet) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.records)
}

func (w *WorkingSet) Stats() models.RecordStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	stats := models.RecordStats{
		Total:      len(w.records),
		ByCategory: make(map[enum.Category]int),
		ByAccount:  make(map[string]int),
	}
	for _, record := range w.records {
		stats.ByCategory[record.Category]++
		stats.ByAccount[record.Account]++
	}
	return stats
}

// sortNewestFirst orders by timestamp descending, then insertion sequence.
func sortNewestFirst(records []models.EmailRecord, seqs map[models.RecordKey]uint64) {
	slices.SortFunc(records, func(a, b models.EmailRecord) int {
		switch {
		case a.Timestamp > b.Timestamp:
			return -1
		case a.Timestamp < b.Timestamp:
			return 1
		}
		sa, sb := seqs[a.Key()], seqs[b.Key()]
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		default:
			return 0
		}
	})
}
