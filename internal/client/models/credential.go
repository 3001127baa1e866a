// Package models defines the plaintext vault items the client works with.
// They only ever leave the process encrypted under EncKey.
package models

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrIncorrectMetadata = errors.New("metadata item must be name=value")
	ErrItemNotFound      = errors.New("item not found")
	ErrAmbiguousRef      = errors.New("reference matches more than one item")
)

// Metadata is a free-form name/value pair attached to a credential.
type Metadata struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MetadataFromString parses "name=value" arguments. The value may itself
// contain '='.
func MetadataFromString(s []string) ([]Metadata, error) {
	data := make([]Metadata, len(s))
	for n, item := range s {
		name, value, ok := strings.Cut(item, "=")
		if !ok || name == "" {
			return nil, ErrIncorrectMetadata
		}
		data[n] = Metadata{Name: name, Value: value}
	}
	return data, nil
}

// Credential is one site login stored in the vault.
type Credential struct {
	ID        string     `json:"id"`
	Site      string     `json:"site"`
	Username  string     `json:"username"`
	Password  string     `json:"password"`
	URL       string     `json:"url,omitempty"`
	Metadata  []Metadata `json:"metadata,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewCredential stamps a fresh id and the current time.
func NewCredential(site, username, password, url string, md []Metadata) Credential {
	return Credential{
		ID:        uuid.NewString(),
		Site:      site,
		Username:  username,
		Password:  password,
		URL:       url,
		Metadata:  md,
		UpdatedAt: time.Now().UTC(),
	}
}

// Items is the decrypted vault.
type Items []Credential

// Sorted returns a copy ordered by site, then username.
func (it Items) Sorted() Items {
	out := make(Items, len(it))
	copy(out, it)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Site != out[j].Site {
			return out[i].Site < out[j].Site
		}
		return out[i].Username < out[j].Username
	})
	return out
}

// Find resolves ref to the index of one item. ref is an id, an id prefix or
// an exact site name (case-insensitive).
func (it Items) Find(ref string) (int, error) {
	if ref == "" {
		return -1, ErrItemNotFound
	}
	found := -1
	for i, c := range it {
		if c.ID == ref {
			return i, nil
		}
		if strings.HasPrefix(c.ID, ref) || strings.EqualFold(c.Site, ref) {
			if found >= 0 {
				return -1, ErrAmbiguousRef
			}
			found = i
		}
	}
	if found < 0 {
		return -1, ErrItemNotFound
	}
	return found, nil
}

// Remove returns the items without the one ref resolves to.
func (it Items) Remove(ref string) (Items, Credential, error) {
	i, err := it.Find(ref)
	if err != nil {
		return it, Credential{}, err
	}
	removed := it[i]
	out := make(Items, 0, len(it)-1)
	out = append(out, it[:i]...)
	out = append(out, it[i+1:]...)
	return out, removed, nil
}
