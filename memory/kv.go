package memory

import (
	"context"
	"errors"
)

// KV is the persistence view the conversation manager depends on: plain
// string values addressed by key, last write wins.
type KV interface {
	// Get returns the value for key. A missing key is reported with
	// ok == false and a nil error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

type storeKV struct {
	store     Store
	namespace string
}

// NewKV adapts a Store to KV. A non-empty namespace prefixes every key
// ("<namespace>/<key>") so several widgets can share one backend.
func NewKV(store Store, namespace string) KV {
	return &storeKV{store: store, namespace: namespace}
}

func (kv *storeKV) key(key string) string {
	if kv.namespace == "" {
		return key
	}
	return kv.namespace + "/" + key
}

func (kv *storeKV) Get(ctx context.Context, key string) (string, bool, error) {
	entries, err := kv.store.Load(ctx, kv.key(key))
	if errors.Is(err, ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return string(entries[0].Value), true, nil
}

func (kv *storeKV) Set(ctx context.Context, key, value string) error {
	return kv.store.Save(ctx, Entry{Key: kv.key(key), Value: []byte(value)})
}

func (kv *storeKV) Remove(ctx context.Context, key string) error {
	return kv.store.Delete(ctx, kv.key(key))
}
