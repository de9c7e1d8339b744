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

// Package invite tracks group invitations between users and notifies both
// sides of every change.
package invite

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/subreg"
)

const RES_INVITE_URI = "/oic/invite"

type Invite struct {
	GroupId string
	Inviter string
	Invitee string
}

// One side's view of an invitation: the peer is the invitee for a sent
// invitation and the inviter for a received one.
type entry struct {
	GroupId string `structs:"gid" codec:"gid"`
	PeerId  string `structs:"mid" codec:"mid"`
}

type view struct {
	Sent     []entry `structs:"invite" codec:"invite"`
	Received []entry `structs:"invited" codec:"invited"`
}

type Manager struct {
	mtx     sync.Mutex
	invites map[Invite]struct{}

	subs *subreg.Registry[string]
}

func NewManager() *Manager {
	return &Manager{
		invites: map[Invite]struct{}{},
		subs:    subreg.New[string]("invite"),
	}
}

func (m *Manager) Add(inv Invite) error {
	if inv.GroupId == "" || inv.Inviter == "" || inv.Invitee == "" {
		return cxutil.NewBadRequestError("incomplete invitation")
	}
	if inv.Inviter == inv.Invitee {
		return cxutil.NewBadRequestError("cannot invite oneself")
	}

	m.mtx.Lock()
	m.invites[inv] = struct{}{}
	m.mtx.Unlock()

	log.Debugf("invite: %s invited %s to %s",
		inv.Inviter, inv.Invitee, inv.GroupId)

	m.notify(inv.Inviter, inv.Invitee)
	return nil
}

// Removes invitations to gid involving uid.  When uid sent them, peerId
// names the invitee to cancel; otherwise uid answers the invitations it
// received.  An empty peerId matches any peer.
func (m *Manager) Delete(uid string, gid string, peerId string) error {
	m.mtx.Lock()

	var removed []Invite
	for inv := range m.invites {
		if inv.GroupId != gid {
			continue
		}

		sent := inv.Inviter == uid &&
			(peerId == "" || inv.Invitee == peerId)
		received := inv.Invitee == uid &&
			(peerId == "" || inv.Inviter == peerId)

		if sent || received {
			delete(m.invites, inv)
			removed = append(removed, inv)
		}
	}

	m.mtx.Unlock()

	if len(removed) == 0 {
		return cxutil.FmtNotFoundError("no invitation to %s for %s", gid, uid)
	}

	for _, inv := range removed {
		m.notify(inv.Inviter, inv.Invitee)
	}
	return nil
}

func sortEntries(es []entry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].GroupId != es[j].GroupId {
			return es[i].GroupId < es[j].GroupId
		}
		return es[i].PeerId < es[j].PeerId
	})
}

func (m *Manager) view(uid string) view {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	v := view{
		Sent:     []entry{},
		Received: []entry{},
	}
	for inv := range m.invites {
		if inv.Inviter == uid {
			v.Sent = append(v.Sent, entry{inv.GroupId, inv.Invitee})
		}
		if inv.Invitee == uid {
			v.Received = append(v.Received, entry{inv.GroupId, inv.Inviter})
		}
	}

	sortEntries(v.Sent)
	sortEntries(v.Received)
	return v
}

// The invitations a user has sent and received.
func (m *Manager) View(uid string) map[string]interface{} {
	return cxutil.StructToMap(m.view(uid))
}

func (m *Manager) Subscribe(uid string, subscriberId string,
	requestId string, fn subreg.DeliverFn) map[string]interface{} {

	m.subs.Subscribe(uid, subscriberId, requestId, fn)
	return m.View(uid)
}

func (m *Manager) Unsubscribe(uid string, requestId string) {
	m.subs.Unsubscribe(uid, requestId)
}

func (m *Manager) UnsubscribeAll(subscriberId string) int {
	return m.subs.UnsubscribeAll(subscriberId)
}

func (m *Manager) NumSubscribers(uid string) int {
	return m.subs.NumSubscribers(uid)
}

func (m *Manager) notify(uids ...string) {
	for _, uid := range uids {
		uid := uid
		m.subs.Notify(uid, func() ([]byte, error) {
			return cxutil.EncodeCborMap(m.View(uid))
		})
	}
}

// Parses the invitations of a POST body: {invite: [{gid, mid}]}.
func ParseInvites(inviter string, val map[string]interface{}) ([]Invite, error) {
	list, ok := val["invite"].([]interface{})
	if !ok || len(list) == 0 {
		return nil, cxutil.NewBadRequestError("missing invite list")
	}

	invs := make([]Invite, 0, len(list))
	for _, item := range list {
		im, ok := item.(map[string]interface{})
		if !ok {
			return nil, cxutil.NewBadRequestError("invite is not a map")
		}

		gid := cast.ToString(im["gid"])
		mid := cast.ToString(im["mid"])
		if gid == "" || mid == "" {
			return nil, cxutil.NewBadRequestError("invite lacks gid or mid")
		}

		invs = append(invs, Invite{
			GroupId: gid,
			Inviter: inviter,
			Invitee: mid,
		})
	}

	return invs, nil
}
