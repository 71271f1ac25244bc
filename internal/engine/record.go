package engine

import (
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	vaultKeyPrefix    = "vault"
	overflowKeyPrefix = "overflow"
)

func vaultField(number int) string    { return vaultKeyPrefix + strconv.Itoa(number) }
func overflowField(number int) string { return overflowKeyPrefix + strconv.Itoa(number) }

// Record is one owner's document: vault<N> -> encoded contents. Keys it does
// not understand are kept as-is and written back on save.
type Record struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// ParseRecord decodes a YAML document. An empty document is an empty record.
func ParseRecord(data []byte) (*Record, error) {
	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	if values == nil {
		values = make(map[string]any)
	}
	return &Record{values: values}, nil
}

// Marshal encodes the record as YAML with sorted keys.
func (r *Record) Marshal() ([]byte, error) {
	r.mu.RLock()
	snapshot := maps.Clone(r.values)
	r.mu.RUnlock()
	return yaml.Marshal(snapshot)
}

// Vault returns the encoded contents of a vault number.
func (r *Record) Vault(number int) (string, bool) {
	return r.str(vaultField(number))
}

// HasVault reports whether the vault number has stored contents.
func (r *Record) HasVault(number int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.values[vaultField(number)]
	return ok
}

// SetVault stores encoded contents for a vault number.
func (r *Record) SetVault(number int, data string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[vaultField(number)] = data
}

// RemoveVault drops a vault number together with any preserved overflow.
func (r *Record) RemoveVault(number int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, vaultField(number))
	delete(r.values, overflowField(number))
}

// Overflow returns encoded entries preserved when the vault was truncated.
func (r *Record) Overflow(number int) (string, bool) {
	return r.str(overflowField(number))
}

// SetOverflow stores encoded overflow entries for a vault number.
func (r *Record) SetOverflow(number int, data string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[overflowField(number)] = data
}

// Numbers returns the stored vault numbers in ascending order.
func (r *Record) Numbers() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var numbers []int
	for key := range r.values {
		rest, ok := strings.CutPrefix(key, vaultKeyPrefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

func (r *Record) str(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
