// Package cache defines the key-value store used for query results and
// conversation state, plus the key fingerprinting scheme.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Prefix namespaces every key written by this module.
const Prefix = "wq"

// Store is an externally synchronized key-value store with per-key TTL.
// Writers never read-modify-write: every Set replaces the full value, so
// concurrent writers are last-write-wins per key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes a key, or every matching key when keyOrPattern
	// contains '*'.
	Delete(ctx context.Context, keyOrPattern string) error
}

// Key joins parts into a namespaced key.
func Key(parts ...string) string {
	return Prefix + ":" + strings.Join(parts, ":")
}

// Fingerprint is a 64-bit FNV-1a hash rendered as hex. It is deliberately
// non-cryptographic: a collision yields a stale cache hit, not a wrong
// answer, and keys stay short.
func Fingerprint(s string) string {
	h := fnv.New64a()
	h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}

// CanonicalJSON serializes v with map keys sorted at every level, so equal
// values always produce equal bytes. Slices keep their order.
func CanonicalJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return string(raw)
	}
	var sb strings.Builder
	writeCanonical(&sb, generic)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			sb.Write(kb)
			sb.WriteByte(':')
			writeCanonical(sb, t[k])
		}
		sb.WriteByte('}')
	case []interface{}:
		sb.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		b, _ := json.Marshal(t)
		sb.Write(b)
	}
}

// GetJSON reads key and unmarshals it into v.
func GetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode cached value %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and writes it under key.
func SetJSON(ctx context.Context, s Store, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode value for %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}
