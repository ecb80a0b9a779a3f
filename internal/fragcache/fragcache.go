// Package fragcache 缓存片段抽取结果，监听模式下仅重新解析内容变化的片段。
package fragcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"dtsmerge/pkg/contract"
)

type key struct {
	id  contract.FileID
	sum [sha256.Size]byte
}

// Cache 为有界 LRU，键为 (FileID, 内容 SHA-256)。
type Cache struct {
	lru    *lru.Cache[key, contract.Fragment]
	hits   atomic.Int64
	misses atomic.Int64
}

// New 创建容量为 size 的缓存；size<=0 返回 nil（调用方据此关闭缓存）。
func New(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	l, err := lru.New[key, contract.Fragment](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Wrap 返回带缓存的抽取器；c 为 nil 时原样返回 next。
func (c *Cache) Wrap(next contract.Extractor) contract.Extractor {
	if c == nil {
		return next
	}
	return &cached{c: c, next: next}
}

// Stats 返回累计命中/未命中次数。
func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// Len 返回当前条目数。
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

type cached struct {
	c    *Cache
	next contract.Extractor
}

func (x *cached) Extract(ctx context.Context, id contract.FileID, r io.Reader) (contract.Fragment, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return contract.Fragment{}, err
	}
	k := key{id: id, sum: sha256.Sum256(content)}
	if f, ok := x.c.lru.Get(k); ok {
		x.c.hits.Add(1)
		return contract.CloneFragment(f), nil
	}
	x.c.misses.Add(1)
	f, err := x.next.Extract(ctx, id, bytes.NewReader(content))
	if err != nil {
		// 失败结果不缓存
		return contract.Fragment{}, err
	}
	x.c.lru.Add(k, contract.CloneFragment(f))
	return f, nil
}
