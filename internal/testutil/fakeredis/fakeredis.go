// Package fakeredis is an in-memory stand-in for the handful of redis.Cmdable
// commands the shop stores issue. Any other command panics on the nil embedded interface.
package fakeredis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	redis.Cmdable

	mu      sync.Mutex
	strings map[string]string
	lists   map[string][]string

	// Err, when set, is returned by every command.
	Err error
}

func New() *Client {
	return &Client{
		strings: make(map[string]string),
		lists:   make(map[string][]string),
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func (c *Client) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return redis.NewStatusResult("", c.Err)
	}
	c.strings[key] = toString(value)
	return redis.NewStatusResult("OK", nil)
}

func (c *Client) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return redis.NewStringResult("", c.Err)
	}
	v, ok := c.strings[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (c *Client) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return redis.NewIntResult(0, c.Err)
	}
	for _, v := range values {
		c.lists[key] = append(c.lists[key], toString(v))
	}
	return redis.NewIntResult(int64(len(c.lists[key])), nil)
}

func (c *Client) LLen(_ context.Context, key string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return redis.NewIntResult(0, c.Err)
	}
	return redis.NewIntResult(int64(len(c.lists[key])), nil)
}

// LRange supports the 0..-1 and positive index forms.
func (c *Client) LRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return redis.NewStringSliceResult(nil, c.Err)
	}
	list := c.lists[key]
	n := int64(len(list))
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return redis.NewStringSliceResult([]string{}, nil)
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return redis.NewStringSliceResult(out, nil)
}

// StoredKeys lists stored string and list keys, for assertions.
func (c *Client) StoredKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.strings)+len(c.lists))
	for k := range c.strings {
		keys = append(keys, k)
	}
	for k := range c.lists {
		keys = append(keys, k)
	}
	return keys
}

var _ redis.Cmdable = (*Client)(nil)
