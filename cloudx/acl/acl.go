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

// Package acl keeps per-device access control lists and answers the policy
// checks made before a request is routed to a device.
package acl

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/subreg"
)

// CRUDN permission bits.
const (
	PERM_CREATE = 1 << iota
	PERM_READ
	PERM_UPDATE
	PERM_DELETE
	PERM_NOTIFY
)

type SubjectType int

const (
	SUBJECT_DEVICE SubjectType = iota
	SUBJECT_USER
	SUBJECT_GROUP
)

const WILDCARD_HREF = "*"

type AceResource struct {
	Href string   `structs:"href" codec:"href"`
	Rt   []string `structs:"rt" codec:"rt"`
	If   []string `structs:"if" codec:"if"`
}

type Ace struct {
	Id          string        `structs:"aceid" codec:"aceid"`
	SubjectId   string        `structs:"subjectuuid" codec:"subjectuuid"`
	SubjectType SubjectType   `structs:"stype" codec:"stype"`
	Permission  int           `structs:"permission" codec:"permission"`
	Resources   []AceResource `structs:"resources" codec:"resources"`
}

type Acl struct {
	Id       string `structs:"aclid" codec:"aclid"`
	DeviceId string `structs:"di" codec:"di"`
	OwnerId  string `structs:"oid" codec:"oid"`
	Aces     []Ace  `structs:"aclist" codec:"aclist"`
}

func (a *Acl) clone() *Acl {
	c := *a
	c.Aces = append([]Ace(nil), a.Aces...)
	return &c
}

func (a *Acl) Map() map[string]interface{} {
	m := cxutil.StructToMap(*a)
	if a.Aces == nil {
		m["aclist"] = []interface{}{}
	}
	return m
}

// Permission bit required for a request method.
func MethodPermission(method string) (int, bool) {
	switch strings.ToLower(method) {
	case "get":
		return PERM_READ, true
	case "post":
		return PERM_UPDATE, true
	case "put":
		return PERM_CREATE, true
	case "delete":
		return PERM_DELETE, true
	default:
		return 0, false
	}
}

func (r AceResource) matches(uri string) bool {
	return r.Href == WILDCARD_HREF || r.Href == uri
}

func (ace Ace) allows(subjectId string, perm int, uri string) bool {
	if ace.SubjectId != subjectId || ace.Permission&perm == 0 {
		return false
	}

	for _, r := range ace.Resources {
		if r.matches(uri) {
			return true
		}
	}
	return false
}

type Manager struct {
	mtx   sync.Mutex
	acls  map[string]*Acl
	byDev map[string]string

	subs *subreg.Registry[string]

	// Optional; called after each change notification.
	NotifyCb func(count int)
}

func NewManager() *Manager {
	return &Manager{
		acls:  map[string]*Acl{},
		byDev: map[string]string{},
		subs:  subreg.New[string]("acl"),
	}
}

// Returns the ACL of a device, creating an empty one owned by ownerId if
// none exists.
func (m *Manager) Create(deviceId string, ownerId string) (*Acl, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if id, ok := m.byDev[deviceId]; ok {
		return m.acls[id].clone(), false
	}

	a := &Acl{
		Id:       uuid.NewString(),
		DeviceId: deviceId,
		OwnerId:  ownerId,
	}
	m.acls[a.Id] = a
	m.byDev[deviceId] = a.Id

	log.Debugf("created acl %s for device %s", a.Id, deviceId)
	return a.clone(), true
}

func (m *Manager) Get(aclId string) (*Acl, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	a, ok := m.acls[aclId]
	if !ok {
		return nil, cxutil.FmtNotFoundError("no such acl: %s", aclId)
	}
	return a.clone(), nil
}

func (m *Manager) FindByDevice(deviceId string) (*Acl, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	id, ok := m.byDev[deviceId]
	if !ok {
		return nil, false
	}
	return m.acls[id].clone(), true
}

func (m *Manager) Delete(aclId string) error {
	m.mtx.Lock()
	a, ok := m.acls[aclId]
	if ok {
		delete(m.acls, aclId)
		delete(m.byDev, a.DeviceId)
	}
	m.mtx.Unlock()

	if !ok {
		return cxutil.FmtNotFoundError("no such acl: %s", aclId)
	}
	return nil
}

// Appends entries; each gets a fresh id.  Returns the assigned ids.
func (m *Manager) AddAces(aclId string, aces []Ace) ([]string, error) {
	m.mtx.Lock()
	a, ok := m.acls[aclId]
	if !ok {
		m.mtx.Unlock()
		return nil, cxutil.FmtNotFoundError("no such acl: %s", aclId)
	}

	ids := make([]string, len(aces))
	for i, ace := range aces {
		ace.Id = uuid.NewString()
		ids[i] = ace.Id
		a.Aces = append(a.Aces, ace)
	}
	m.mtx.Unlock()

	m.notify(aclId)
	return ids, nil
}

// Removes one entry, or every entry when aceId is empty.
func (m *Manager) DeleteAce(aclId string, aceId string) error {
	m.mtx.Lock()
	a, ok := m.acls[aclId]
	if !ok {
		m.mtx.Unlock()
		return cxutil.FmtNotFoundError("no such acl: %s", aclId)
	}

	if aceId == "" {
		a.Aces = nil
	} else {
		idx := -1
		for i, ace := range a.Aces {
			if ace.Id == aceId {
				idx = i
				break
			}
		}
		if idx < 0 {
			m.mtx.Unlock()
			return cxutil.FmtNotFoundError("no such ace: %s", aceId)
		}
		a.Aces = append(a.Aces[:idx:idx], a.Aces[idx+1:]...)
	}
	m.mtx.Unlock()

	m.notify(aclId)
	return nil
}

// Decides whether subjectId may apply method to uri on deviceId.  The
// device's owner may do anything.
func (m *Manager) Verify(subjectId string, deviceId string, method string,
	uri string) bool {

	perm, ok := MethodPermission(method)
	if !ok {
		return false
	}

	a, ok := m.FindByDevice(deviceId)
	if !ok {
		return false
	}

	if subjectId != "" && subjectId == a.OwnerId {
		return true
	}

	for _, ace := range a.Aces {
		if ace.allows(subjectId, perm, uri) {
			return true
		}
	}

	return false
}

func (m *Manager) Subscribe(aclId string, subscriberId string,
	requestId string, fn subreg.DeliverFn) (*Acl, error) {

	a, err := m.Get(aclId)
	if err != nil {
		return nil, err
	}

	m.subs.Subscribe(aclId, subscriberId, requestId, fn)
	return a, nil
}

func (m *Manager) Unsubscribe(aclId string, requestId string) {
	m.subs.Unsubscribe(aclId, requestId)
}

func (m *Manager) UnsubscribeAll(subscriberId string) int {
	return m.subs.UnsubscribeAll(subscriberId)
}

func (m *Manager) notify(aclId string) {
	cnt := m.subs.Notify(aclId, func() ([]byte, error) {
		a, err := m.Get(aclId)
		if err != nil {
			return nil, err
		}
		return cxutil.EncodeCborMap(a.Map())
	})

	if m.NotifyCb != nil {
		m.NotifyCb(cnt)
	}
}

func (m *Manager) Ids() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	ids := make([]string, 0, len(m.acls))
	for id := range m.acls {
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids
}

func toStrings(v interface{}) []string {
	if v == nil {
		return nil
	}
	return cast.ToStringSlice(v)
}

// Parses the entries of an add request.
func ParseAces(val map[string]interface{}) ([]Ace, error) {
	raw, ok := val["aclist"]
	if !ok {
		return nil, cxutil.NewBadRequestError("missing aclist")
	}

	list, ok := raw.([]interface{})
	if !ok {
		return nil, cxutil.NewBadRequestError("aclist is not an array")
	}

	aces := make([]Ace, 0, len(list))
	for _, item := range list {
		am, ok := item.(map[string]interface{})
		if !ok {
			return nil, cxutil.NewBadRequestError("ace is not a map")
		}

		subject, err := cast.ToStringE(am["subjectuuid"])
		if err != nil || subject == "" {
			return nil, cxutil.NewBadRequestError("ace lacks subjectuuid")
		}

		perm, err := cast.ToIntE(am["permission"])
		if err != nil {
			return nil, cxutil.NewBadRequestError("ace has bad permission")
		}

		ace := Ace{
			SubjectId:   subject,
			SubjectType: SubjectType(cast.ToInt(am["stype"])),
			Permission:  perm,
		}

		rlist, _ := am["resources"].([]interface{})
		for _, r := range rlist {
			rm, ok := r.(map[string]interface{})
			if !ok {
				return nil, cxutil.NewBadRequestError("resource is not a map")
			}

			href, err := cast.ToStringE(rm["href"])
			if err != nil || href == "" {
				return nil, cxutil.NewBadRequestError("resource lacks href")
			}

			ace.Resources = append(ace.Resources, AceResource{
				Href: href,
				Rt:   toStrings(rm["rt"]),
				If:   toStrings(rm["if"]),
			})
		}

		aces = append(aces, ace)
	}

	return aces, nil
}
