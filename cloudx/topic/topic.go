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

// Package topic is a small publish/subscribe message queue.  Each topic
// keeps its latest message and pushes every published message to its
// observers.
package topic

import (
	"sort"
	"strings"
	"sync"

	"github.com/runtimeco/go-coap"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
	"mynewt.apache.org/newtcloud/cloudx/subreg"
)

const RES_PS_URI = "/.well-known/ocf/ps"

type topic struct {
	creator string
	latest  []byte
}

type Manager struct {
	mtx    sync.Mutex
	topics map[string]*topic

	subs *subreg.Registry[string]

	// Optional; called with the number of observers reached by a publish.
	NotifyCb func(count int)
}

func NewManager() *Manager {
	return &Manager{
		topics: map[string]*topic{},
		subs:   subreg.New[string]("topic"),
	}
}

func (m *Manager) Create(name string, creator string) error {
	if name == "" {
		return cxutil.NewBadRequestError("empty topic name")
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	if _, ok := m.topics[name]; ok {
		return cxutil.FmtBadRequestError("topic exists: %s", name)
	}

	m.topics[name] = &topic{creator: creator}
	log.Debugf("topic: created %s", name)
	return nil
}

// Removes a topic along with its observers.
func (m *Manager) Delete(name string) error {
	m.mtx.Lock()
	_, ok := m.topics[name]
	delete(m.topics, name)
	m.mtx.Unlock()

	if !ok {
		return cxutil.FmtNotFoundError("no such topic: %s", name)
	}

	for _, e := range m.subs.Subscribers(name) {
		m.subs.Unsubscribe(name, e.RequestId)
	}
	return nil
}

// Stores msg as the topic's latest message and pushes it to every observer.
func (m *Manager) Publish(name string, msg []byte) (int, error) {
	m.mtx.Lock()
	t, ok := m.topics[name]
	if ok {
		t.latest = append([]byte(nil), msg...)
	}
	m.mtx.Unlock()

	if !ok {
		return 0, cxutil.FmtNotFoundError("no such topic: %s", name)
	}

	cnt := m.subs.Notify(name, func() ([]byte, error) {
		return msg, nil
	})

	if m.NotifyCb != nil {
		m.NotifyCb(cnt)
	}
	return cnt, nil
}

func (m *Manager) Latest(name string) ([]byte, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	t, ok := m.topics[name]
	if !ok {
		return nil, cxutil.FmtNotFoundError("no such topic: %s", name)
	}
	return t.latest, nil
}

func (m *Manager) Subscribe(name string, subscriberId string,
	requestId string, fn subreg.DeliverFn) ([]byte, error) {

	// Registered under the manager lock; Delete must observe it.
	m.mtx.Lock()
	defer m.mtx.Unlock()

	t, ok := m.topics[name]
	if !ok {
		return nil, cxutil.FmtNotFoundError("no such topic: %s", name)
	}

	m.subs.Subscribe(name, subscriberId, requestId, fn)
	return t.latest, nil
}

func (m *Manager) Unsubscribe(name string, requestId string) {
	m.subs.Unsubscribe(name, requestId)
}

func (m *Manager) UnsubscribeAll(subscriberId string) int {
	return m.subs.UnsubscribeAll(subscriberId)
}

func (m *Manager) NumSubscribers(name string) int {
	return m.subs.NumSubscribers(name)
}

func (m *Manager) Names() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	names := make([]string, 0, len(m.topics))
	for name := range m.topics {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Topic name addressed by a path below the base URI.
func topicName(path string) string {
	segs := cxcoap.Segments(path)
	base := cxcoap.Segments(RES_PS_URI)
	if len(segs) <= len(base) {
		return ""
	}
	return strings.Join(segs[len(base):], "/")
}

func (m *Manager) psGet(src sesn.Peer, req *cxcoap.Msg) {
	name := topicName(req.Path)
	if name == "" {
		b, err := cxutil.EncodeCborMap(map[string]interface{}{
			"topiclist": m.Names(),
		})
		if err != nil {
			oic.RespondErr(src, req, err)
			return
		}
		oic.Respond(src, req, coap.Content, b)
		return
	}

	var msg []byte
	var err error

	switch req.Observe {
	case cxcoap.OBSERVE_SUBSCRIBE:
		msg, err = m.Subscribe(name, src.Id(), oic.RequestId(src, req),
			oic.NotifyFn(src, req))

	case cxcoap.OBSERVE_UNSUBSCRIBE:
		m.Unsubscribe(name, oic.RequestId(src, req))
		msg, err = m.Latest(name)

	default:
		msg, err = m.Latest(name)
	}

	if err != nil {
		oic.RespondErr(src, req, err)
		return
	}
	oic.Respond(src, req, coap.Content, msg)
}

func (m *Manager) psPut(src sesn.Peer, req *cxcoap.Msg) {
	if err := m.Create(topicName(req.Path), src.UserId()); err != nil {
		oic.RespondErr(src, req, err)
		return
	}
	oic.Respond(src, req, coap.Created, nil)
}

func (m *Manager) psPost(src sesn.Peer, req *cxcoap.Msg) {
	if _, err := m.Publish(topicName(req.Path), req.Payload); err != nil {
		oic.RespondErr(src, req, err)
		return
	}
	oic.Respond(src, req, coap.Changed, nil)
}

func (m *Manager) psDelete(src sesn.Peer, req *cxcoap.Msg) {
	if err := m.Delete(topicName(req.Path)); err != nil {
		oic.RespondErr(src, req, err)
		return
	}
	oic.Respond(src, req, coap.Deleted, nil)
}

// The message queue rooted at /.well-known/ocf/ps.  Published payloads are
// opaque and delivered unchanged.
func (m *Manager) Resource() oic.Resource {
	return oic.Resource{
		Uri:      RES_PS_URI,
		GetCb:    m.psGet,
		PostCb:   m.psPost,
		PutCb:    m.psPut,
		DeleteCb: m.psDelete,
	}
}
