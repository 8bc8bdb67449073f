// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package labeling tracks the activity catalog and the operator's current
// activity selection, and drives recording sessions on the stream.
package labeling

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// NoSubActivity is the sub-activity every activity carries, meaning no
// further refinement.
const NoSubActivity = "None"

// DefaultActivities seeds a catalog when no catalog file is configured.
var DefaultActivities = []string{"standing", "sitting", "walking"}

// Activity is one catalog entry with its sub-activities in insertion order.
type Activity struct {
	Name          string   `json:"name" yaml:"name"`
	SubActivities []string `json:"subActivities" yaml:"sub_activities"`
}

// Catalog is the set of known activities. It only grows.
type Catalog struct {
	mu    sync.RWMutex
	order []string
	subs  map[string][]string
}

// NewCatalog builds a catalog from entries. Names are normalized and
// duplicates are rejected.
func NewCatalog(entries ...Activity) (*Catalog, error) {
	c := &Catalog{subs: make(map[string][]string)}
	for _, e := range entries {
		name, err := c.Add(e.Name)
		if err != nil {
			return nil, err
		}
		for _, sub := range e.SubActivities {
			if normalizeSub(sub) == NoSubActivity {
				continue
			}
			if _, err := c.AddSubActivity(name, sub); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// DefaultCatalog returns a catalog holding DefaultActivities.
func DefaultCatalog() *Catalog {
	c := &Catalog{subs: make(map[string][]string)}
	for _, name := range DefaultActivities {
		c.order = append(c.order, name)
		c.subs[name] = []string{NoSubActivity}
	}
	return c
}

type catalogFile struct {
	Activities []Activity `yaml:"activities"`
}

// LoadCatalog reads a YAML catalog file of the form
//
//	activities:
//	  - name: walking
//	    sub_activities: [uphill, downhill]
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(f.Activities) == 0 {
		return nil, fmt.Errorf("catalog %s defines no activities", path)
	}
	return NewCatalog(f.Activities...)
}

// Add normalizes name (trimmed, lowercased) and appends it. It returns the
// stored name.
func (c *Catalog) Add(name string) (string, error) {
	n := normalize(name)
	if n == "" {
		return "", ErrEmptyName
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[n]; ok {
		return "", &DuplicateActivityError{Name: n}
	}
	c.order = append(c.order, n)
	c.subs[n] = []string{NoSubActivity}
	return n, nil
}

// AddSubActivity normalizes name and appends it under activity.
func (c *Catalog) AddSubActivity(activity, name string) (string, error) {
	a := normalize(activity)
	n := normalize(name)
	if n == "" {
		return "", ErrEmptyName
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	subs, ok := c.subs[a]
	if !ok {
		return "", &UnknownActivityError{Name: a}
	}
	for _, existing := range subs {
		if strings.EqualFold(existing, n) {
			return "", &DuplicateActivityError{Activity: a, Name: n}
		}
	}
	c.subs[a] = append(subs, n)
	return n, nil
}

// Has reports whether activity is in the catalog.
func (c *Catalog) Has(activity string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subs[normalize(activity)]
	return ok
}

// HasSubActivity reports whether sub is known under activity.
func (c *Catalog) HasSubActivity(activity, sub string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.subs[normalize(activity)] {
		if strings.EqualFold(s, strings.TrimSpace(sub)) {
			return true
		}
	}
	return false
}

// Activities returns a copy of the catalog in insertion order.
func (c *Catalog) Activities() []Activity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Activity, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, Activity{
			Name:          name,
			SubActivities: append([]string(nil), c.subs[name]...),
		})
	}
	return out
}

// Names returns the activity names in insertion order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// normalizeSub is normalize, except that any spelling of NoSubActivity
// maps to NoSubActivity itself.
func normalizeSub(name string) string {
	n := normalize(name)
	if n == strings.ToLower(NoSubActivity) {
		return NoSubActivity
	}
	return n
}
