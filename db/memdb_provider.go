package db

import (
	"sort"
	"strings"
	"sync"
)

// MemDBProvider implements DatabaseProvider with an in-process map. It backs
// tests and throwaway nodes; nothing survives a restart.
type MemDBProvider struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDBProvider creates an empty in-memory provider
func NewMemDBProvider() *MemDBProvider {
	return &MemDBProvider{data: make(map[string][]byte)}
}

// Get retrieves a value by key
func (p *MemDBProvider) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, ok := p.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

// GetBatch retrieves multiple values by keys in a single operation
func (p *MemDBProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := p.data[string(key)]; ok {
			result[string(key)] = append([]byte(nil), value...)
		}
	}
	return result, nil
}

// Put stores a key-value pair
func (p *MemDBProvider) Put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete removes a key-value pair
func (p *MemDBProvider) Delete(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, string(key))
	return nil
}

// Has checks if a key exists
func (p *MemDBProvider) Has(key []byte) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.data[string(key)]
	return ok, nil
}

// Close closes the database connection
func (p *MemDBProvider) Close() error {
	return nil
}

// Len reports the number of stored keys, handy in tests.
func (p *MemDBProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.data)
}

// Batch returns a new batch for atomic operations
func (p *MemDBProvider) Batch() DatabaseBatch {
	return &MemDBBatch{provider: p}
}

// IteratePrefix iterates over all key-value pairs with the given prefix in
// key order, matching the on-disk providers.
func (p *MemDBProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	p.mu.RLock()
	keys := make([]string, 0, len(p.data))
	for key := range p.data {
		if strings.HasPrefix(key, string(prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, key := range keys {
		snapshot[key] = append([]byte(nil), p.data[key]...)
	}
	p.mu.RUnlock()

	for _, key := range keys {
		if !callback([]byte(key), snapshot[key]) {
			break
		}
	}
	return nil
}

type memBatchOp struct {
	del   bool
	key   []byte
	value []byte
}

// MemDBBatch implements DatabaseBatch for MemDBProvider
type MemDBBatch struct {
	provider *MemDBProvider
	ops      []memBatchOp
}

// Put adds a key-value pair to the batch
func (b *MemDBBatch) Put(key, value []byte) {
	b.ops = append(b.ops, memBatchOp{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

// Delete adds a deletion to the batch
func (b *MemDBBatch) Delete(key []byte) {
	b.ops = append(b.ops, memBatchOp{
		del: true,
		key: append([]byte(nil), key...),
	})
}

// Write commits all operations in the batch
func (b *MemDBBatch) Write() error {
	b.provider.mu.Lock()
	defer b.provider.mu.Unlock()
	for _, op := range b.ops {
		if op.del {
			delete(b.provider.data, string(op.key))
			continue
		}
		b.provider.data[string(op.key)] = op.value
	}
	return nil
}

// Reset clears the batch
func (b *MemDBBatch) Reset() {
	b.ops = b.ops[:0]
}

// Close releases batch resources
func (b *MemDBBatch) Close() {
	b.ops = nil
}
