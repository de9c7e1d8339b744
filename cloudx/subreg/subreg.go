/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package subreg keeps, per key, the set of subscribers waiting for change
// notifications and fans payloads out to them.
//
// Notification always follows the same two steps: snapshot the subscriber set
// under the registry lock, then deliver to the snapshot with the lock
// released.  A subscribe or unsubscribe that races a notify is therefore
// either entirely before the snapshot (and observed) or entirely after it
// (and not).
package subreg

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Delivers one payload to a subscriber.  Bound at subscribe time to the
// subscriber's original request and response sink.
type DeliverFn func(payload []byte) error

// Builds the payload for a notify call.
type PayloadFn func() ([]byte, error)

// Builds a subscriber-specific payload.  Called with the entry's own lock
// held, so Seq() is stable for the duration of the call.
type EntryPayloadFn[K comparable] func(e *Entry[K]) ([]byte, error)

type Entry[K comparable] struct {
	Key          K
	SubscriberId string
	RequestId    string

	mtx       sync.Mutex
	deliverFn DeliverFn
	seq       uint64
}

// Sequence number of the next notification for this subscription.  Starts
// at 1.
func (e *Entry[K]) Seq() uint64 {
	return e.seq
}

func (e *Entry[K]) fn() DeliverFn {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return e.deliverFn
}

type Registry[K comparable] struct {
	// Name used in log messages.
	Name string

	mtx  sync.Mutex
	subs map[K]map[string]*Entry[K]
}

func New[K comparable](name string) *Registry[K] {
	return &Registry[K]{
		Name: name,
		subs: map[K]map[string]*Entry[K]{},
	}
}

// Registers a subscriber under key.  Re-subscribing with the same requestId
// replaces the handler of the existing entry; its sequence counter is kept.
func (r *Registry[K]) Subscribe(key K, subscriberId string, requestId string,
	fn DeliverFn) *Entry[K] {

	r.mtx.Lock()
	defer r.mtx.Unlock()

	m := r.subs[key]
	if m == nil {
		m = map[string]*Entry[K]{}
		r.subs[key] = m
	}

	if e := m[requestId]; e != nil {
		e.mtx.Lock()
		e.deliverFn = fn
		e.mtx.Unlock()

		log.Debugf("%s: refreshed subscription; key=%v req=%s",
			r.Name, key, requestId)
		return e
	}

	e := &Entry[K]{
		Key:          key,
		SubscriberId: subscriberId,
		RequestId:    requestId,
		deliverFn:    fn,
		seq:          1,
	}
	m[requestId] = e

	log.Debugf("%s: added subscription; key=%v sub=%s req=%s",
		r.Name, key, subscriberId, requestId)
	return e
}

// Removes the matching entry.  Removing an absent entry is not an error; a
// retransmitted unsubscribe must not fault.
func (r *Registry[K]) Unsubscribe(key K, requestId string) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	m := r.subs[key]
	if m == nil {
		return false
	}

	if _, ok := m[requestId]; !ok {
		return false
	}

	delete(m, requestId)
	if len(m) == 0 {
		delete(r.subs, key)
	}

	log.Debugf("%s: removed subscription; key=%v req=%s",
		r.Name, key, requestId)
	return true
}

// Removes every entry held by a subscriber.  Called when the subscriber's
// connection goes away.
func (r *Registry[K]) UnsubscribeAll(subscriberId string) int {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	count := 0
	for key, m := range r.subs {
		for reqId, e := range m {
			if e.SubscriberId == subscriberId {
				delete(m, reqId)
				count++
			}
		}
		if len(m) == 0 {
			delete(r.subs, key)
		}
	}

	if count > 0 {
		log.Debugf("%s: removed %d subscriptions of %s",
			r.Name, count, subscriberId)
	}
	return count
}

// Copies the current subscriber set for key.  Entries are ordered by request
// id so delivery order is deterministic.
func (r *Registry[K]) snapshot(key K) []*Entry[K] {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	m := r.subs[key]
	entries := make([]*Entry[K], 0, len(m))
	for _, e := range m {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RequestId < entries[j].RequestId
	})
	return entries
}

func (r *Registry[K]) Subscribers(key K) []*Entry[K] {
	return r.snapshot(key)
}

func (r *Registry[K]) NumSubscribers(key K) int {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	return len(r.subs[key])
}

func (r *Registry[K]) Keys() []K {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	keys := make([]K, 0, len(r.subs))
	for k := range r.subs {
		keys = append(keys, k)
	}
	return keys
}

// Delivers one payload, built once, to every subscriber of key.  Returns
// the number of successful deliveries.
func (r *Registry[K]) Notify(key K, build PayloadFn) int {
	entries := r.snapshot(key)
	if len(entries) == 0 {
		return 0
	}

	payload, err := build()
	if err != nil {
		log.Errorf("%s: failed to build notification; key=%v: %s",
			r.Name, key, err.Error())
		return 0
	}

	delivered := 0
	for _, e := range entries {
		if err := e.fn()(payload); err != nil {
			log.Infof("%s: delivery failed; key=%v sub=%s: %s",
				r.Name, key, e.SubscriberId, err.Error())
			continue
		}
		delivered++
	}

	return delivered
}

// Delivers a subscriber-specific payload to every subscriber of key.  Each
// entry's sequence number advances once per successful delivery.
func (r *Registry[K]) NotifyEach(key K, build EntryPayloadFn[K]) int {
	entries := r.snapshot(key)

	delivered := 0
	for _, e := range entries {
		if r.deliverOne(e, build) {
			delivered++
		}
	}

	return delivered
}

func (r *Registry[K]) deliverOne(e *Entry[K], build EntryPayloadFn[K]) bool {
	// Generation and delivery for one subscription are serialized.
	e.mtx.Lock()
	defer e.mtx.Unlock()

	payload, err := build(e)
	if err != nil {
		log.Errorf("%s: failed to build notification; key=%v sub=%s: %s",
			r.Name, e.Key, e.SubscriberId, err.Error())
		return false
	}

	if err := e.deliverFn(payload); err != nil {
		log.Infof("%s: delivery failed; key=%v sub=%s: %s",
			r.Name, e.Key, e.SubscriberId, err.Error())
		return false
	}

	e.seq++
	return true
}
