package store

import (
	"sort"

	"github.com/searchdeck/searchdeck/internal/locking"
)

// Subscribe registers a callback fired once after every completed action.
// The returned function unsubscribes; it is safe to call more than once.
func (s *Store) Subscribe(fn func()) func() {
	var id int
	s.lock.Execute(locking.WriteOperation, func() error {
		id = s.nextObserver
		s.nextObserver++
		s.observers[id] = fn
		return nil
	})
	return func() {
		s.lock.Execute(locking.WriteOperation, func() error {
			delete(s.observers, id)
			return nil
		})
	}
}

// notify fires the callbacks outside the store lock, after the action
// committed. Callbacks may call back into the store.
func (s *Store) notify() {
	var callbacks []func()
	s.lock.Execute(locking.ReadOperation, func() error {
		ids := make([]int, 0, len(s.observers))
		for id := range s.observers {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			callbacks = append(callbacks, s.observers[id])
		}
		return nil
	})
	for _, fn := range callbacks {
		fn()
	}
}
