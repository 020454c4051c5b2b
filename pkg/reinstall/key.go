package reinstall

import (
	"encoding/json"
	"fmt"
)

// PluginKey is the tagged identifier of a plugin outcome. Repository plugins
// are keyed by registry slug; premium plugins by their exact install path.
// Making the key an explicit tagged value keeps lookups keyed correctly per
// origin: asking a path-keyed entry for its slug fails loudly instead of
// matching nothing at runtime.
type PluginKey struct {
	kind  keyKind
	value string
}

type keyKind uint8

const (
	kindNone keyKind = iota
	kindSlug
	kindPath
)

// SlugKey builds a registry-slug key.
func SlugKey(slug string) PluginKey {
	return PluginKey{kind: kindSlug, value: slug}
}

// PathKey builds an install-path key.
func PathKey(path string) PluginKey {
	return PluginKey{kind: kindPath, value: path}
}

// Slug returns the slug value and whether this key is slug-kinded.
func (k PluginKey) Slug() (string, bool) {
	return k.value, k.kind == kindSlug
}

// Path returns the path value and whether this key is path-kinded.
func (k PluginKey) Path() (string, bool) {
	return k.value, k.kind == kindPath
}

// IsZero reports whether the key is unset.
func (k PluginKey) IsZero() bool {
	return k.kind == kindNone
}

// String renders the key for logs and error messages.
func (k PluginKey) String() string {
	switch k.kind {
	case kindSlug:
		return "slug:" + k.value
	case kindPath:
		return "path:" + k.value
	default:
		return "<unset>"
	}
}

type keyJSON struct {
	Slug string `json:"slug,omitempty"`
	Path string `json:"path,omitempty"`
}

// MarshalJSON encodes the key with its kind intact so accumulated results
// survive the side-store round trip.
func (k PluginKey) MarshalJSON() ([]byte, error) {
	switch k.kind {
	case kindSlug:
		return json.Marshal(keyJSON{Slug: k.value})
	case kindPath:
		return json.Marshal(keyJSON{Path: k.value})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a key written by MarshalJSON.
func (k *PluginKey) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*k = PluginKey{}
		return nil
	}

	var raw keyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Slug != "" && raw.Path != "":
		return fmt.Errorf("plugin key cannot carry both slug and path")
	case raw.Slug != "":
		*k = SlugKey(raw.Slug)
	case raw.Path != "":
		*k = PathKey(raw.Path)
	default:
		*k = PluginKey{}
	}
	return nil
}
