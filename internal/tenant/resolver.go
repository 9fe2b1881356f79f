// Package tenant maps filename prefixes to tenant routing settings.
package tenant

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"docpipeline/internal/model"
)

var (
	ErrConfigMissing = errors.New("tenant config file not found")
	ErrConfigInvalid = errors.New("tenant config invalid")
	ErrUnknownTenant = errors.New("unknown tenant")
)

var (
	prefixPattern   = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	filenamePattern = regexp.MustCompile(`^([A-Za-z0-9-]+)_`)
)

var readFile = os.ReadFile

// entry is the on-disk shape of one prefix in the JSON map.
type entry struct {
	TenantID         string `json:"tenantId"`
	TaxID            string `json:"taxId"`
	Bucket           string `json:"bucket"`
	StorageKeyPrefix string `json:"storageKeyPrefix"`
}

// Resolver loads the prefix map once and serves lookups from memory.
// It is safe for concurrent use.
type Resolver struct {
	path string

	mu     sync.RWMutex
	byPref map[string]model.Tenant
	byID   map[string]model.Tenant
	loaded bool
}

// NewResolver returns a Resolver reading the JSON map at path on first use.
func NewResolver(path string) *Resolver {
	return &Resolver{path: path}
}

// NewStatic returns a Resolver pre-populated with tenants. InvalidateCache
// on a static resolver empties it.
func NewStatic(tenants ...model.Tenant) *Resolver {
	r := &Resolver{}
	r.set(tenants)
	return r
}

// Load reads and caches the prefix map. Subsequent calls return the cached
// result until InvalidateCache is called.
func (r *Resolver) Load() (map[string]model.Tenant, error) {
	r.mu.RLock()
	if r.loaded {
		out := cloneMap(r.byPref)
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()

	tenants, err := parseFile(r.path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(tenants)
	return cloneMap(r.byPref), nil
}

// Resolve returns the tenant for a filename prefix.
func (r *Resolver) Resolve(prefix string) (model.Tenant, error) {
	if err := r.ensureLoaded(); err != nil {
		return model.Tenant{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byPref[prefix]
	if !ok {
		return model.Tenant{}, fmt.Errorf("%w: prefix %q", ErrUnknownTenant, prefix)
	}
	return t, nil
}

// ByTenantID returns the tenant with the given database id.
func (r *Resolver) ByTenantID(id string) (model.Tenant, error) {
	if err := r.ensureLoaded(); err != nil {
		return model.Tenant{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return model.Tenant{}, fmt.Errorf("%w: id %q", ErrUnknownTenant, id)
	}
	return t, nil
}

// Tenants returns every configured tenant ordered by prefix.
func (r *Resolver) Tenants() ([]model.Tenant, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Tenant, 0, len(r.byPref))
	for _, t := range r.byPref {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out, nil
}

// InvalidateCache forces the next Load to re-read the file.
func (r *Resolver) InvalidateCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.byPref = nil
	r.byID = nil
}

func (r *Resolver) ensureLoaded() error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	_, err := r.Load()
	return err
}

// set must be called with mu held for writing, or before r is shared.
func (r *Resolver) set(tenants []model.Tenant) {
	r.byPref = make(map[string]model.Tenant, len(tenants))
	r.byID = make(map[string]model.Tenant, len(tenants))
	for _, t := range tenants {
		r.byPref[t.Prefix] = t
		if _, dup := r.byID[t.TenantID]; !dup {
			r.byID[t.TenantID] = t
		}
	}
	r.loaded = true
}

func parseFile(path string) ([]model.Tenant, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrConfigMissing)
	}
	b, err := readFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigMissing, path)
		}
		return nil, fmt.Errorf("read tenant config: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a prefix map document.
func Parse(b []byte) ([]model.Tenant, error) {
	var raw map[string]entry
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	tenants := make([]model.Tenant, 0, len(raw))
	for prefix, e := range raw {
		if !prefixPattern.MatchString(prefix) {
			return nil, fmt.Errorf("%w: prefix %q must match [A-Za-z0-9-]+", ErrConfigInvalid, prefix)
		}
		if e.TenantID == "" || e.Bucket == "" {
			return nil, fmt.Errorf("%w: prefix %q requires tenantId and bucket", ErrConfigInvalid, prefix)
		}
		keyPrefix := strings.Trim(e.StorageKeyPrefix, "/")
		if keyPrefix == "" {
			keyPrefix = prefix
		}
		tenants = append(tenants, model.Tenant{
			Prefix:           prefix,
			TenantID:         e.TenantID,
			TaxID:            e.TaxID,
			Bucket:           e.Bucket,
			StorageKeyPrefix: keyPrefix,
		})
	}
	return tenants, nil
}

// PrefixOf returns the routing prefix of a filename: the text before the
// first underscore, restricted to letters, digits and dashes.
func PrefixOf(filename string) (string, bool) {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func cloneMap(m map[string]model.Tenant) map[string]model.Tenant {
	out := make(map[string]model.Tenant, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
