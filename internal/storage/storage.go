// Package storage provides namespaced, JSON-aware key/value helpers over a local
// (persistent) and a session (process-lifetime) backend.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Prefix namespaces every key written through the helpers.
const Prefix = "lora_manager_"

const migrationFlagKey = "migration_completed"

// legacyKeys are the un-prefixed keys written by older releases.
var legacyKeys = []string{
	"theme",
	"activeFolder",
	"folderTagsCollapsed",
	"settings",
	"loras_filters",
	"recipes_filters",
	"checkpoints_filters",
	"loras_search_prefs",
	"recipes_search_prefs",
	"checkpoints_search_prefs",
	"show_update_notifications",
	"last_update_check",
	"dismissed_banners",
	"loras_preview_versions",
	"checkpoints_preview_versions",
	"embeddings_preview_versions",
}

// Namespace is a prefixed view over one backend.
type Namespace struct {
	backend Backend
	prefix  string
}

func NewNamespace(backend Backend, prefix string) *Namespace {
	return &Namespace{backend: backend, prefix: prefix}
}

func (n *Namespace) key(k string) string { return n.prefix + k }

// raw returns the stored string for key. An absent prefixed key falls back to the
// legacy un-prefixed key, which is moved under the prefix on the way.
func (n *Namespace) raw(key string) (string, bool, error) {
	v, err := n.backend.Get(n.key(key))
	if err == nil {
		return string(v), true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", false, err
	}

	legacy, err := n.backend.Get(key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if err := n.backend.Put(n.key(key), legacy); err != nil {
		return "", false, fmt.Errorf("migrating legacy key %s: %w", key, err)
	}
	if err := n.backend.Delete(key); err != nil {
		return "", false, fmt.Errorf("removing legacy key %s: %w", key, err)
	}
	log.WithField("key", key).Debug("Migrated legacy storage key on read")
	return string(legacy), true, nil
}

// Value returns the decoded value for key, or def when absent. Stored text that is not
// valid JSON is returned as a plain string.
func (n *Namespace) Value(key string, def any) any {
	s, ok, err := n.raw(key)
	if err != nil {
		log.WithError(err).Warnf("Error reading storage key %s", key)
		return def
	}
	if !ok {
		return def
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// Get decodes the value for key into out and reports whether the key existed.
// When out is a *string and the stored text is not a JSON string, the raw text is used.
func (n *Namespace) Get(key string, out any) (bool, error) {
	s, ok, err := n.raw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		if sp, isString := out.(*string); isString {
			*sp = s
			return true, nil
		}
		return true, fmt.Errorf("decoding storage key %s: %w", key, err)
	}
	return true, nil
}

// GetString returns the value for key as text, or def when absent.
func (n *Namespace) GetString(key, def string) string {
	var s string
	ok, err := n.Get(key, &s)
	if err != nil || !ok {
		return def
	}
	return s
}

// Set stores value under key. Strings are stored verbatim, everything else as JSON.
func (n *Namespace) Set(key string, value any) error {
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding storage key %s: %w", key, err)
		}
		data = encoded
	}
	return n.backend.Put(n.key(key), data)
}

func (n *Namespace) Remove(key string) error {
	return n.backend.Delete(n.key(key))
}

// Keys lists the un-prefixed names of the keys in this namespace.
func (n *Namespace) Keys() ([]string, error) {
	all, err := n.backend.Keys()
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, k := range all {
		if len(k) > len(n.prefix) && k[:len(n.prefix)] == n.prefix {
			keys = append(keys, k[len(n.prefix):])
		}
	}
	return keys, nil
}

// Helpers groups the local and session namespaces.
type Helpers struct {
	Local   *Namespace
	Session *Namespace

	local   Backend
	session Backend
}

func New(local, session Backend) *Helpers {
	return &Helpers{
		Local:   NewNamespace(local, Prefix),
		Session: NewNamespace(session, Prefix),
		local:   local,
		session: session,
	}
}

// NewInMemory returns helpers with both namespaces backed by memory.
func NewInMemory() *Helpers {
	return New(NewMemoryBackend(), NewMemoryBackend())
}

// Close releases both backends.
func (h *Helpers) Close() error {
	errLocal := h.local.Close()
	errSession := h.session.Close()
	if errLocal != nil {
		return errLocal
	}
	return errSession
}

// MigrateStorageItems copies the known legacy keys of local storage under the prefix
// and deletes them. It runs once: a completion flag stops later walks.
func (h *Helpers) MigrateStorageItems() (int, error) {
	var done bool
	if ok, _ := h.Local.Get(migrationFlagKey, &done); ok && done {
		log.Debug("Storage migration already completed")
		return 0, nil
	}

	migrated := 0
	for _, key := range legacyKeys {
		legacy, err := h.local.Get(key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return migrated, fmt.Errorf("reading legacy key %s: %w", key, err)
		}
		if _, err := h.local.Get(h.Local.key(key)); errors.Is(err, ErrNotFound) {
			if err := h.local.Put(h.Local.key(key), legacy); err != nil {
				return migrated, fmt.Errorf("copying legacy key %s: %w", key, err)
			}
			migrated++
		}
		if err := h.local.Delete(key); err != nil {
			return migrated, fmt.Errorf("removing legacy key %s: %w", key, err)
		}
	}

	if err := h.Local.Set(migrationFlagKey, true); err != nil {
		return migrated, err
	}
	log.Infof("Storage migration completed, %d legacy keys migrated", migrated)
	return migrated, nil
}
