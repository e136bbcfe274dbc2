package core

import (
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// curveCacheSize bounds how many distinct curves keep a table.
	curveCacheSize = 16
	// denseLevels is how far every prefix sum is kept.
	denseLevels = 1 << 16
	// checkpointStride spaces the prefix sums kept past denseLevels.
	checkpointStride = 1 << 10
)

var curves = newCurveCache(curveCacheSize)

// curveKey holds the only fields the cost curve depends on.
type curveKey struct {
	A, Alpha float64
}

func keyOf(cfg Config) curveKey { return curveKey{A: cfg.LevelA, Alpha: cfg.LevelAlpha} }

func (k curveKey) config() Config { return Config{LevelA: k.A, LevelAlpha: k.Alpha} }

// curveCache memoises exact prefix sums of RequiredXP per curve.
type curveCache struct {
	lru *lru.Cache[curveKey, *prefixTable]
}

func newCurveCache(size int) *curveCache {
	c, err := lru.New[curveKey, *prefixTable](size)
	if err != nil {
		panic(err)
	}
	return &curveCache{lru: c}
}

func (c *curveCache) get(cfg Config) *prefixTable {
	key := keyOf(cfg)
	if t, ok := c.lru.Get(key); ok {
		return t
	}
	t := &prefixTable{cfg: key.config(), sums: []int64{0}, marks: []int64{0}}
	if prev, ok, _ := c.lru.PeekOrAdd(key, t); ok {
		return prev
	}
	return t
}

// prefixTable holds sums[i] = RequiredXP(1) + ... + RequiredXP(i) for
// i <= denseLevels and marks[j] = the same sum for i = j*checkpointStride up
// to MaxLevel, both grown on demand. Sums saturate at math.MaxInt64.
type prefixTable struct {
	mu    sync.Mutex
	cfg   Config
	sums  []int64
	marks []int64
}

// cumulative costs at most checkpointStride RequiredXP evaluations once the
// checkpoints below level exist. level must not exceed MaxLevel.
func (t *prefixTable) cumulative(level int64) int64 {
	if level <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if level <= denseLevels {
		for n := int64(len(t.sums)); n <= level; n++ {
			t.sums = append(t.sums, saturatingAdd(t.sums[n-1], RequiredXP(n, t.cfg)))
		}
		return t.sums[level]
	}

	j := level / checkpointStride
	for n := int64(len(t.marks)); n <= j; n++ {
		t.marks = append(t.marks, t.sumRange(t.marks[n-1], (n-1)*checkpointStride+1, n*checkpointStride))
	}
	return t.sumRange(t.marks[j], j*checkpointStride+1, level)
}

// sumRange adds the cost of levels from..to onto sum.
func (t *prefixTable) sumRange(sum, from, to int64) int64 {
	for l := from; l <= to && sum < math.MaxInt64; l++ {
		sum = saturatingAdd(sum, RequiredXP(l, t.cfg))
	}
	return sum
}

func saturatingAdd(a, b int64) int64 {
	s, err := AddSafe(a, b)
	if err != nil {
		return math.MaxInt64
	}
	return s
}
