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

package topic

import (
	"testing"

	"github.com/runtimeco/go-coap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/sesn/sesntest"
)

func newServer(t *testing.T, m *Manager) *oic.Server {
	s := oic.NewServer()
	require.NoError(t, s.AddResource(m.Resource()))
	return s
}

func recvCode(t *testing.T, p *sesntest.Peer, code coap.COAPCode) *cxcoap.Msg {
	rsp, err := p.Recv()
	require.NoError(t, err)
	require.Equal(t, code, rsp.Code, "%s", rsp.String())
	return rsp
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "", topicName("/.well-known/ocf/ps"))
	assert.Equal(t, "t1", topicName("/.well-known/ocf/ps/t1"))
	assert.Equal(t, "a/b", topicName("/.well-known/ocf/ps/a/b/"))
}

func TestPublishFanout(t *testing.T) {
	m := NewManager()
	notified := []int{}
	m.NotifyCb = func(cnt int) { notified = append(notified, cnt) }

	s := newServer(t, m)
	pub := sesntest.NewPeer("pub")
	sub1 := sesntest.NewPeer("sub1")
	sub2 := sesntest.NewPeer("sub2")

	s.Handle(pub, cxcoap.CreatePut("/.well-known/ocf/ps/temp", []byte{1}, nil))
	recvCode(t, pub, coap.Created)

	s.Handle(sub1, cxcoap.CreateGet("/.well-known/ocf/ps/temp",
		cxcoap.OBSERVE_SUBSCRIBE, []byte{5}))
	rsp := recvCode(t, sub1, coap.Content)
	assert.Empty(t, rsp.Payload)

	s.Handle(sub2, cxcoap.CreateGet("/.well-known/ocf/ps/temp",
		cxcoap.OBSERVE_SUBSCRIBE, []byte{6}))
	recvCode(t, sub2, coap.Content)

	s.Handle(pub, cxcoap.CreatePost("/.well-known/ocf/ps/temp", []byte{2},
		[]byte("21C")))
	recvCode(t, pub, coap.Changed)

	note := recvCode(t, sub1, coap.Content)
	assert.Equal(t, []byte{5}, note.Token)
	assert.Equal(t, []byte("21C"), note.Payload)

	note = recvCode(t, sub2, coap.Content)
	assert.Equal(t, []byte{6}, note.Token)
	assert.Equal(t, []byte("21C"), note.Payload)

	assert.Equal(t, []int{2}, notified)

	// A late subscriber gets the latest message.
	late := sesntest.NewPeer("late")
	s.Handle(late, cxcoap.CreateGet("/.well-known/ocf/ps/temp",
		cxcoap.OBSERVE_NONE, []byte{7}))
	rsp = recvCode(t, late, coap.Content)
	assert.Equal(t, []byte("21C"), rsp.Payload)

	// Unsubscribe one observer.
	s.Handle(sub1, cxcoap.CreateGet("/.well-known/ocf/ps/temp",
		cxcoap.OBSERVE_UNSUBSCRIBE, []byte{5}))
	recvCode(t, sub1, coap.Content)

	cnt, err := m.Publish("temp", []byte("22C"))
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)
	assert.Equal(t, 3, sub1.NumRsps())
}

func TestTopicList(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Create("b", "u"))
	require.NoError(t, m.Create("a", "u"))

	s := newServer(t, m)
	p := sesntest.NewPeer("p")

	s.Handle(p, cxcoap.CreateGet("/.well-known/ocf/ps", cxcoap.OBSERVE_NONE,
		[]byte{1}))
	rsp := recvCode(t, p, coap.Content)

	val, err := cxutil.DecodeCborMap(rsp.Payload)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, val["topiclist"])
}

func TestDeleteDropsObservers(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Create("t", "u"))

	_, err := m.Subscribe("t", "s1", "r1", func([]byte) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, m.NumSubscribers("t"))

	require.NoError(t, m.Delete("t"))
	assert.Equal(t, 0, m.NumSubscribers("t"))

	_, err = m.Publish("t", []byte("x"))
	assert.True(t, cxutil.IsNotFound(err))
	assert.True(t, cxutil.IsNotFound(m.Delete("t")))
}

func TestErrors(t *testing.T) {
	m := NewManager()
	s := newServer(t, m)
	p := sesntest.NewPeer("p")

	s.Handle(p, cxcoap.CreatePut("/.well-known/ocf/ps/t", []byte{1}, nil))
	recvCode(t, p, coap.Created)

	s.Handle(p, cxcoap.CreatePut("/.well-known/ocf/ps/t", []byte{2}, nil))
	recvCode(t, p, coap.BadRequest)

	s.Handle(p, cxcoap.CreatePut("/.well-known/ocf/ps", []byte{3}, nil))
	recvCode(t, p, coap.BadRequest)

	s.Handle(p, cxcoap.CreatePost("/.well-known/ocf/ps/none", []byte{4},
		[]byte("x")))
	recvCode(t, p, coap.NotFound)

	s.Handle(p, cxcoap.CreateGet("/.well-known/ocf/ps/none",
		cxcoap.OBSERVE_SUBSCRIBE, []byte{5}))
	recvCode(t, p, coap.NotFound)

	s.Handle(p, cxcoap.CreateDelete("/.well-known/ocf/ps/t", []byte{6}, nil))
	recvCode(t, p, coap.Deleted)
}
