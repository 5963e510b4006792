package rules

import (
	"regexp"

	"github.com/jellydator/ttlcache/v3"
)

const regexCacheCapacity = 256

type compiled struct {
	re  *regexp.Regexp
	err error
}

type regexpCache struct {
	items *ttlcache.Cache[string, compiled]
}

var regexCache = newRegexpCache(regexCacheCapacity)

func newRegexpCache(capacity uint64) *regexpCache {
	return &regexpCache{
		items: ttlcache.New[string, compiled](
			ttlcache.WithCapacity[string, compiled](capacity),
			ttlcache.WithTTL[string, compiled](ttlcache.NoTTL),
		),
	}
}

// Get 编译并缓存正则，编译失败的结果同样缓存
func (c *regexpCache) Get(pattern string) (*regexp.Regexp, error) {
	if item := c.items.Get(pattern); item != nil {
		v := item.Value()
		return v.re, v.err
	}
	re, err := regexp.Compile(pattern)
	c.items.Set(pattern, compiled{re: re, err: err}, ttlcache.DefaultTTL)
	return re, err
}

func matchRegex(s, pattern string) bool {
	re, err := regexCache.Get(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
