package override

import lru "github.com/hashicorp/golang-lru/v2"

// DefaultProgramCacheSize bounds NewProgramCache when size is not positive.
const DefaultProgramCacheSize = 256

type lruProgramCache struct {
	programs *lru.Cache[string, any]
}

// NewProgramCache returns a ProgramCache that keeps the size most recently
// used programs. Evaluators sharing one cache must not share expressions
// across engines, since entries are keyed by expression text only.
func NewProgramCache(size int) ProgramCache {
	if size <= 0 {
		size = DefaultProgramCacheSize
	}
	programs, err := lru.New[string, any](size)
	if err != nil {
		// lru.New only fails for non-positive sizes, which are excluded above.
		panic(err)
	}
	return &lruProgramCache{programs: programs}
}

func (c *lruProgramCache) Get(key string) (any, bool) {
	return c.programs.Get(key)
}

func (c *lruProgramCache) Set(key string, value any) {
	c.programs.Add(key, value)
}
