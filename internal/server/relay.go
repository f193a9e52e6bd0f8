// Package server fans presence and content events out to room members via
// the Relay type, the only writer of registry state.
package server

import (
	"encoding/json"
	"fmt"
	"log"
)

// memberSender delivers a payload to one member's outbound queue and evicts
// members whose queues are full or whose connections are gone. The hub
// implements it.
type memberSender interface {
	deliver(member *Client, payload []byte) bool
	evict(member *Client)
}

// Relay implements the presence and broadcast operations for pad rooms. It
// registers membership changes with its Registry, then fans the resulting
// notifications out to every other member of the room. The membership
// snapshot is taken inside the registry's short critical section; delivery
// happens outside it, so a slow recipient never stalls the room.
type Relay struct {
	registry *Registry
	sender   memberSender
}

// NewRelay creates a relay backed by the given registry, delivering outbound
// frames through sender.
func NewRelay(registry *Registry, sender memberSender) *Relay {
	return &Relay{
		registry: registry,
		sender:   sender,
	}
}

// OnJoin registers member in the room for id and announces the join to every
// other current member. The joiner itself receives no notification, and a
// rejoin on the same connection is not re-announced. In strict mode, joining
// a never-allocated ID fails with ErrUnknownRoom.
func (r *Relay) OnJoin(id SessionID, member *Client) error {
	joined, err := r.registry.Join(id, member)
	if err != nil {
		return err
	}
	if joined {
		r.broadcastPresence(id, member, fmt.Sprintf("%s has joined the room.", member.Username()))
	}
	return nil
}

// OnLeave removes member from the room for id and announces the leave to the
// remaining members. Leaving a room the member never joined is a no-op.
func (r *Relay) OnLeave(id SessionID, member *Client) {
	if !r.registry.Leave(id, member) {
		return
	}
	r.broadcastPresence(id, member, fmt.Sprintf("%s has left the room.", member.Username()))
}

// OnContentChange fans code out verbatim to every other member of the room
// for id. The payload is opaque; no ordering or merging is applied. Senders
// that are not current members of the room are rejected.
func (r *Relay) OnContentChange(id SessionID, sender *Client, code json.RawMessage) error {
	if !r.registry.IsMember(id, sender) {
		return ErrNotMember
	}

	payload, err := json.Marshal(CodeUpdate{Event: EventCodeUpdate, Code: code})
	if err != nil {
		return fmt.Errorf("encode code-update: %w", err)
	}
	r.fanOut(id, sender, payload)
	return nil
}

func (r *Relay) broadcastPresence(id SessionID, originator *Client, msg string) {
	payload, err := json.Marshal(PresenceMessage{Event: EventMessage, Msg: msg})
	if err != nil {
		log.Printf("Error encoding presence message for room %s: %v", id, err)
		return
	}
	r.fanOut(id, originator, payload)
}

// fanOut delivers payload to every member of the room except sender.
// Members whose outbound queues are full are evicted rather than awaited.
func (r *Relay) fanOut(id SessionID, sender *Client, payload []byte) {
	for _, member := range r.registry.MembersExcept(id, sender) {
		if !r.sender.deliver(member, payload) {
			log.Printf("Dropping member %s from room %s: send queue full or connection gone", member.addr, id)
			r.sender.evict(member)
		}
	}
}
