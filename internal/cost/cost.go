// Package cost provides the plane-to-task cost function used as the
// static potential of each plane/task pair.
package cost

import (
	"fmt"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"planes_maxsum/internal/domain"
)

// Locator reports where a plane currently is.
type Locator interface {
	PlaneLocation(plane domain.PlaneID) (domain.Location, bool)
}

// Travel returns the euclidean distance from plane to task. Unknown planes
// cost nothing to avoid penalising a neighbour the world has not placed yet.
func Travel(planes Locator) func(plane domain.PlaneID, task domain.Task) float64 {
	return func(plane domain.PlaneID, task domain.Task) float64 {
		loc, ok := planes.PlaneLocation(plane)
		if !ok {
			return 0
		}
		return loc.Distance(task.Location)
	}
}

// Cache memoizes a cost function per (plane, task). Entries of a plane
// must be forgotten when it moves.
type Cache struct {
	fn    func(plane domain.PlaneID, task domain.Task) float64
	items *gocache.Cache

	mu     sync.Mutex
	hits   int64
	misses int64
}

func NewCache(fn func(plane domain.PlaneID, task domain.Task) float64) *Cache {
	return &Cache{
		fn:    fn,
		items: gocache.New(gocache.NoExpiration, 0),
	}
}

// planePrefix is length-prefixed so that ids containing the separator
// cannot collide.
func planePrefix(plane domain.PlaneID) string {
	return fmt.Sprintf("%d:%s|", len(plane), plane)
}

func cacheKey(plane domain.PlaneID, task domain.TaskID) string {
	return planePrefix(plane) + string(task)
}

func (c *Cache) Cost(plane domain.PlaneID, task domain.Task) float64 {
	key := cacheKey(plane, task.ID)
	if v, ok := c.items.Get(key); ok {
		c.count(true)
		return v.(float64)
	}
	c.count(false)
	v := c.fn(plane, task)
	c.items.Set(key, v, gocache.NoExpiration)
	return v
}

// Forget drops every cached cost of plane.
func (c *Cache) Forget(plane domain.PlaneID) {
	prefix := planePrefix(plane)
	for key := range c.items.Items() {
		if strings.HasPrefix(key, prefix) {
			c.items.Delete(key)
		}
	}
}

func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}
