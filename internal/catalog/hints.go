package catalog

import (
	"fmt"
	"sync"

	"github.com/dgryski/go-tinylfu"

	"github.com/go-hfsplus/hfsplus/internal/types"
)

// dirHintCapacity bounds the admitted working set of the shared readdir
// hint cache (spec.md §4.F.2: "a small LRU of 16 ... pairs" per folder,
// pooled here into one admission-policy-backed cache across all open
// folders rather than one fixed array per c-node).
const dirHintCapacity = 16 * 64

// dirHint is where a readdir cursor should resume: the catalog key of the
// first not-yet-returned child at a given offset within a folder.
type dirHint struct {
	resumeKey types.CatalogKey
}

// hintCache accelerates repeated get_dirents calls by remembering
// (folderID, offset) -> resume catalog key, invalidated wholesale for a
// folder whenever it is modified (spec.md §4.F.2).
type hintCache struct {
	mu    sync.Mutex
	cache *tinylfu.T
}

func newHintCache() *hintCache {
	return &hintCache{cache: tinylfu.New(dirHintCapacity, dirHintCapacity*10)}
}

func hintKey(folderID types.CNID, offset int) string {
	return fmt.Sprintf("%d:%d", folderID, offset)
}

func (h *hintCache) get(folderID types.CNID, offset int) (dirHint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.cache.Get(hintKey(folderID, offset))
	if !ok {
		return dirHint{}, false
	}
	hint, ok := v.(dirHint)
	return hint, ok
}

func (h *hintCache) put(folderID types.CNID, offset int, hint dirHint) {
	if offset >= dirHintCapacity {
		return // beyond the range invalidateFolder walks
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache.Add(hintKey(folderID, offset), hint)
}

// invalidateFolder drops every cached hint for folderID. The admission
// cache has no per-prefix eviction, so this walks the bounded offset range
// that put ever caches (offsets below dirHintCapacity).
func (h *hintCache) invalidateFolder(folderID types.CNID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for offset := 0; offset < dirHintCapacity; offset++ {
		h.cache.Add(hintKey(folderID, offset), nil)
	}
}
