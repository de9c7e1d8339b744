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

package invite

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

func userPeer(name string) *sesntest.Peer {
	p := sesntest.NewPeer(name)
	p.User = name
	return p
}

func recv(t *testing.T, p *sesntest.Peer) (*cxcoap.Msg, map[string]interface{}) {
	rsp, err := p.Recv()
	require.NoError(t, err)

	m, err := cxutil.DecodeCborMap(rsp.Payload)
	require.NoError(t, err)
	return rsp, m
}

func entries(t *testing.T, v interface{}) []string {
	list, ok := v.([]interface{})
	require.True(t, ok, "not a list: %v", v)

	s := make([]string, len(list))
	for i, item := range list {
		e := item.(map[string]interface{})
		s[i] = e["gid"].(string) + "/" + e["mid"].(string)
	}
	return s
}

func TestViews(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add(Invite{"g1", "alice", "bob"}))
	require.NoError(t, m.Add(Invite{"g2", "carol", "alice"}))

	v := m.view("alice")
	assert.Equal(t, []entry{{"g1", "bob"}}, v.Sent)
	assert.Equal(t, []entry{{"g2", "carol"}}, v.Received)

	assert.True(t, cxutil.IsBadRequest(m.Add(Invite{"g1", "bob", "bob"})))
	assert.True(t, cxutil.IsBadRequest(m.Add(Invite{"", "bob", "al"})))
}

func TestDeleteCancelAndAnswer(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add(Invite{"g1", "alice", "bob"}))
	require.NoError(t, m.Add(Invite{"g1", "alice", "carol"}))

	// Inviter cancels one.
	require.NoError(t, m.Delete("alice", "g1", "bob"))
	assert.Empty(t, m.view("bob").Received)
	assert.Len(t, m.view("alice").Sent, 1)

	// Invitee answers.
	require.NoError(t, m.Delete("carol", "g1", ""))
	assert.Empty(t, m.view("alice").Sent)

	assert.True(t, cxutil.IsNotFound(m.Delete("carol", "g1", "")))
}

func TestResourceFanout(t *testing.T) {
	m := NewManager()
	s := oic.NewServer()
	require.NoError(t, s.AddResource(m.Resource()))

	alice := userPeer("alice")
	bob := userPeer("bob")

	s.Handle(alice, cxcoap.CreateGet("/oic/invite", cxcoap.OBSERVE_SUBSCRIBE,
		[]byte{1}))
	_, val := recv(t, alice)
	assert.Empty(t, val["invite"])
	assert.Empty(t, val["invited"])

	s.Handle(bob, cxcoap.CreateGet("/oic/invite", cxcoap.OBSERVE_SUBSCRIBE,
		[]byte{2}))
	recv(t, bob)

	body, err := cxutil.EncodeCborMap(map[string]interface{}{
		"invite": []interface{}{
			map[string]interface{}{"gid": "g1", "mid": "bob"},
		},
	})
	require.NoError(t, err)

	s.Handle(alice, cxcoap.CreatePost("/oic/invite", []byte{3}, body))

	// The notification is pushed before the POST is answered.
	note, val := recv(t, alice)
	assert.Equal(t, []byte{1}, note.Token)
	assert.Equal(t, []string{"g1/bob"}, entries(t, val["invite"]))

	rsp, _ := recv(t, alice)
	assert.Equal(t, coap.Changed, rsp.Code)

	note, val = recv(t, bob)
	assert.Equal(t, []byte{2}, note.Token)
	assert.Equal(t, []string{"g1/alice"}, entries(t, val["invited"]))

	// Bob accepts.
	s.Handle(bob, cxcoap.CreateDelete("/oic/invite?gid=g1", []byte{4}, nil))

	_, val = recv(t, bob)
	assert.Empty(t, val["invited"])
	rsp, _ = recv(t, bob)
	assert.Equal(t, coap.Deleted, rsp.Code)

	_, val = recv(t, alice)
	assert.Empty(t, val["invite"])

	assert.Equal(t, 2, m.UnsubscribeAll("alice")+m.UnsubscribeAll("bob"))
}

func TestResourceErrors(t *testing.T) {
	m := NewManager()
	s := oic.NewServer()
	require.NoError(t, s.AddResource(m.Resource()))

	anon := sesntest.NewPeer("anon")
	s.Handle(anon, cxcoap.CreateGet("/oic/invite", cxcoap.OBSERVE_NONE,
		[]byte{1}))
	rsp, _ := recv(t, anon)
	assert.Equal(t, coap.BadRequest, rsp.Code)

	alice := userPeer("alice")
	s.Handle(alice, cxcoap.CreatePost("/oic/invite", []byte{2}, nil))
	rsp, _ = recv(t, alice)
	assert.Equal(t, coap.BadRequest, rsp.Code)

	s.Handle(alice, cxcoap.CreateDelete("/oic/invite", []byte{3}, nil))
	rsp, _ = recv(t, alice)
	assert.Equal(t, coap.BadRequest, rsp.Code)

	s.Handle(alice, cxcoap.CreateDelete("/oic/invite?gid=g9", []byte{4}, nil))
	rsp, _ = recv(t, alice)
	assert.Equal(t, coap.NotFound, rsp.Code)
}
