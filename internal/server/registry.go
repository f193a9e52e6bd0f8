// Package server tracks room membership for the pad broker via the Registry
// type, which maps session identifiers to the set of connected members.
package server

import (
	"errors"
	"sync"
)

var (
	// ErrUnknownRoom is returned by Join in strict mode when the target
	// session ID was never allocated through pad creation.
	ErrUnknownRoom = errors.New("unknown room")

	// ErrNotMember is returned when a sender claims a room it has not
	// actually joined.
	ErrNotMember = errors.New("sender is not a member of the room")
)

// room holds the member set for one session. Each room carries its own lock
// so that membership churn in one pad never contends with another.
type room struct {
	mu      sync.Mutex
	members map[*Client]struct{}

	// allocated marks rooms created explicitly at pad-creation time.
	// Allocated rooms survive emptying so the pad stays joinable; lazily
	// created rooms are discarded once their last member leaves.
	allocated bool

	// discarded is set, under mu, when the room is removed from the
	// registry map. A joiner holding a stale pointer must not add itself
	// to a discarded room.
	discarded bool
}

// Registry is the process-wide mapping from session ID to room membership.
// It is safe for concurrent use from any connection's handling goroutine.
// A Registry is created at server start and passed explicitly to the relay
// and gateway; there is no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[SessionID]*room
	strict bool
}

// NewRegistry creates an empty registry. When strict is true, joining a
// session ID that was never allocated is rejected with ErrUnknownRoom;
// otherwise rooms come into existence lazily on first join.
func NewRegistry(strict bool) *Registry {
	return &Registry{
		rooms:  make(map[SessionID]*room),
		strict: strict,
	}
}

// Create registers a freshly allocated session ID with the registry. It is
// called once per pad, at creation time, before any client joins.
func (r *Registry) Create(id SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[id]; ok {
		rm.mu.Lock()
		rm.allocated = true
		rm.mu.Unlock()
		return
	}
	r.rooms[id] = &room{
		members:   make(map[*Client]struct{}),
		allocated: true,
	}
}

// roomForJoin returns the room for id, lazily creating it when the
// permissive policy allows.
func (r *Registry) roomForJoin(id SessionID) (*room, error) {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return rm, nil
	}
	if r.strict {
		return nil, ErrUnknownRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[id]; ok {
		return rm, nil
	}
	rm = &room{members: make(map[*Client]struct{})}
	r.rooms[id] = rm
	return rm, nil
}

// Join adds member to the room for id, creating the room lazily in
// permissive mode. It reports whether the membership is new; rejoining
// with the same connection is a no-op, so a member is never counted
// twice. A concurrent last-member leave can discard the room between the
// lookup and the insert, in which case Join starts over with a fresh
// lookup rather than joining an unreachable room.
func (r *Registry) Join(id SessionID, member *Client) (bool, error) {
	for {
		rm, err := r.roomForJoin(id)
		if err != nil {
			return false, err
		}

		rm.mu.Lock()
		if rm.discarded {
			rm.mu.Unlock()
			continue
		}
		_, rejoin := rm.members[member]
		rm.members[member] = struct{}{}
		rm.mu.Unlock()
		return !rejoin, nil
	}
}

// Leave removes member from the room for id and reports whether the member
// was actually registered there. Double-leave and leave-without-join are
// no-ops. A lazily created room is discarded once it empties.
func (r *Registry) Leave(id SessionID, member *Client) bool {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	rm.mu.Lock()
	_, present := rm.members[member]
	delete(rm.members, member)
	discard := len(rm.members) == 0 && !rm.allocated
	rm.mu.Unlock()

	if discard {
		r.mu.Lock()
		if cur, ok := r.rooms[id]; ok && cur == rm {
			cur.mu.Lock()
			if len(cur.members) == 0 && !cur.allocated {
				cur.discarded = true
				delete(r.rooms, id)
			}
			cur.mu.Unlock()
		}
		r.mu.Unlock()
	}
	return present
}

// MembersExcept returns a snapshot of the room's members excluding sender.
// The snapshot is taken inside a short critical section; callers deliver
// messages to the returned members outside any registry lock.
func (r *Registry) MembersExcept(id SessionID, sender *Client) []*Client {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	members := make([]*Client, 0, len(rm.members))
	for member := range rm.members {
		if member == sender {
			continue
		}
		members = append(members, member)
	}
	return members
}

// IsMember reports whether member is currently registered in the room for id.
func (r *Registry) IsMember(id SessionID, member *Client) bool {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	_, present := rm.members[member]
	return present
}

// RoomExists reports whether the registry currently tracks a room for id,
// whether explicitly allocated or lazily created.
func (r *Registry) RoomExists(id SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[id]
	return ok
}

// MemberCount returns the number of members currently joined to the room
// for id, or zero when the room does not exist.
func (r *Registry) MemberCount(id SessionID) int {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}
