package es

import (
	"fmt"
)

// PostToList posts a copy of the event to each named service in order. A
// failure on one service does not stop delivery to the rest; the result is
// false if any post failed.
func (f *Framework) PostToList(ev Event, services ...string) bool {
	ok := true
	for _, name := range services {
		if !f.Post(name, ev) {
			ok = false
		}
	}
	return ok
}

// PostToAll posts a copy of the event to every service in priority order
func (f *Framework) PostToAll(ev Event) bool {
	ok := true
	for _, s := range f.services {
		if !s.Post(ev) {
			ok = false
		}
	}
	return ok
}

// DefineList names a distribution list
func (f *Framework) DefineList(name string, services ...string) error {
	for _, s := range services {
		if _, exists := f.byName[s]; !exists {
			return fmt.Errorf("list %s member %s: %w", name, s, ErrUnknownService)
		}
	}
	members := make([]string, len(services))
	copy(members, services)
	f.lists[name] = members
	return nil
}

// PostList posts to every member of a named list
func (f *Framework) PostList(name string, ev Event) bool {
	members, ok := f.lists[name]
	if !ok {
		f.logger.Warnf("post %s to unknown list %s", ev, name)
		return false
	}
	return f.PostToList(ev, members...)
}
