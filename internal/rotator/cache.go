package rotator

import (
	"container/list"
	"sync"

	"github.com/groundstation/rotorctl/internal/geometry"
)

// tiltPair bundles the platform and payload tilt quaternions for one
// parameter tuple.
type tiltPair struct {
	platform geometry.Quaternion
	payload  geometry.Quaternion
}

// tiltCache is a bounded, thread-safe LRU cache of tilt quaternions keyed by
// the tilt-affecting parameter tuple. Q_platform and Q_payload are pure
// functions of (tilt_az, tilt_angle, lateral_tilt), but the calibrator's
// optimizer re-derives them on the order of millions of residual
// evaluations; memoizing keeps that affordable (spec.md S4.2, S9).
type tiltCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key   string
	value tiltPair
}

func newTiltCache(capacity int) *tiltCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &tiltCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *tiltCache) get(key string) (tiltPair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return tiltPair{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *tiltCache) put(key string, v tiltPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).value = v
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, value: v})
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// tiltQuaternions returns (Q_platform, Q_payload) for p, consulting and
// populating the shared cache.
func tiltQuaternions(cache *tiltCache, p Params) (platform, payload geometry.Quaternion) {
	key := p.cacheKey()
	if pair, ok := cache.get(key); ok {
		return pair.platform, pair.payload
	}

	// Q_platform: rotate the unit north vector about +z to obtain the tilt
	// axis, then rotate tilt_angle about that axis. The +90 offset (rather
	// than the naive -90) keeps this consistent with the elevation-axis sign
	// convention in EulToQ so that a positive tilt_angle at tilt_az=0 lifts
	// the boresight (positive elevation) as spec.md S3 requires.
	tiltAxisQ := geometry.FromAxisAngle(geometry.Vector3{Z: 1}, p.TiltAz+90)
	tiltAxis := geometry.QTimesV(tiltAxisQ, geometry.Vector3{X: 1})
	platform = geometry.FromAxisAngle(tiltAxis, p.TiltAngle)

	payload = geometry.FromAxisAngle(geometry.Vector3{Z: 1}, p.LateralTilt)

	cache.put(key, tiltPair{platform: platform, payload: payload})
	return platform, payload
}
