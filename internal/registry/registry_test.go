package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldlab/odm-watcher/internal/registry"
)

func TestAddRemoveSnapshot(t *testing.T) {
	r := registry.New()

	r.Add("a")
	r.Add("b")
	assert.Equal(t, 2, r.Len())
	assert.ElementsMatch(t, []string{"a", "b"}, r.Snapshot())

	r.Remove("a")
	assert.Equal(t, []string{"b"}, r.Snapshot())
}

func TestRemoveToleratesMissing(t *testing.T) {
	r := registry.New()

	r.Remove("never-added")
	assert.Equal(t, 0, r.Len())

	r.Add("a")
	r.Remove("a")
	r.Remove("a")
	assert.Equal(t, 0, r.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	r := registry.New()
	r.Add("a")

	snap := r.Snapshot()
	r.Remove("a")

	assert.Equal(t, []string{"a"}, snap)
	assert.Equal(t, 0, r.Len())
}

func TestConcurrentAccess(t *testing.T) {
	r := registry.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", i)
			r.Add(id)
			_ = r.Snapshot()
			if i%2 == 0 {
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, r.Len())
}
