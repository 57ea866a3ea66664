package render

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// GroupClass is the CSS class carried by every element of a group.
func GroupClass(groupID int) string { return fmt.Sprintf("lt-group-%d", groupID) }

// GroupColorProperty is the container custom property holding a group color.
func GroupColorProperty(groupID int) string { return fmt.Sprintf("--lt-group-%d-color", groupID) }

// StyleRegistry holds one CSS rule per group id, shared by every adapter in
// the process. Rules are reference counted so that several mounted adapters,
// or a remount of the same one, never insert a rule twice.
type StyleRegistry struct {
	mu    sync.Mutex
	rules map[int]*styleRule
}

type styleRule struct {
	css  string
	refs int
}

// DefaultStyles is the process-wide registry.
var DefaultStyles = NewStyleRegistry()

// NewStyleRegistry returns an empty registry.
func NewStyleRegistry() *StyleRegistry {
	return &StyleRegistry{rules: make(map[int]*styleRule)}
}

// Acquire takes a reference on the rule for groupID, inserting it if it
// does not exist yet. It reports whether the rule was inserted.
func (r *StyleRegistry) Acquire(groupID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule, ok := r.rules[groupID]; ok {
		rule.refs++
		return false
	}
	r.rules[groupID] = &styleRule{css: groupRule(groupID), refs: 1}
	return true
}

// Release drops a reference; the rule is removed with its last reference.
func (r *StyleRegistry) Release(groupID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[groupID]
	if !ok {
		return
	}
	rule.refs--
	if rule.refs <= 0 {
		delete(r.rules, groupID)
	}
}

// Has reports whether a rule for groupID exists.
func (r *StyleRegistry) Has(groupID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rules[groupID]
	return ok
}

// Refs returns the reference count of a rule, zero if absent.
func (r *StyleRegistry) Refs(groupID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule, ok := r.rules[groupID]; ok {
		return rule.refs
	}
	return 0
}

// Len returns the number of rules.
func (r *StyleRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rules)
}

// Stylesheet renders every rule, ordered by group id.
func (r *StyleRegistry) Stylesheet() string {
	r.mu.Lock()
	ids := make([]int, 0, len(r.rules))
	for id := range r.rules {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(r.rules[id].css)
		b.WriteByte('\n')
	}
	r.mu.Unlock()
	return b.String()
}

func groupRule(id int) string {
	return fmt.Sprintf(".%s { fill: var(%s); background-color: var(%s); }",
		GroupClass(id), GroupColorProperty(id), GroupColorProperty(id))
}
