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

package acl

import (
	"testing"

	"github.com/runtimeco/go-coap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/route"
	"mynewt.apache.org/newtcloud/cloudx/sesn/sesntest"
)

func newServer(t *testing.T, m *Manager) *oic.Server {
	s := oic.NewServer()
	require.NoError(t, s.AddResource(m.VerifyResource(route.VERIFY_URI)))
	require.NoError(t, s.AddResource(m.IdResource()))
	return s
}

func do(t *testing.T, s *oic.Server, p *sesntest.Peer,
	req *cxcoap.Msg) (*cxcoap.Msg, map[string]interface{}) {

	s.Handle(p, req)
	rsp, err := p.Recv()
	require.NoError(t, err)

	m, err := cxutil.DecodeCborMap(rsp.Payload)
	require.NoError(t, err)
	return rsp, m
}

func lightAce(subject string, perm int) Ace {
	return Ace{
		SubjectId:   subject,
		SubjectType: SUBJECT_USER,
		Permission:  perm,
		Resources:   []AceResource{{Href: "/a/light/0"}},
	}
}

func TestVerify(t *testing.T) {
	m := NewManager()
	a, created := m.Create("D1", "owner")
	require.True(t, created)

	_, err := m.AddAces(a.Id, []Ace{
		lightAce("guest", PERM_READ),
		{
			SubjectId:  "admin",
			Permission: PERM_READ | PERM_UPDATE | PERM_CREATE | PERM_DELETE,
			Resources:  []AceResource{{Href: WILDCARD_HREF}},
		},
	})
	require.NoError(t, err)

	cases := []struct {
		sid, di, rm, uri string
		allowed          bool
	}{
		{"owner", "D1", "put", "/anything", true},
		{"guest", "D1", "get", "/a/light/0", true},
		{"guest", "D1", "put", "/a/light/0", false},
		{"guest", "D1", "get", "/a/fan/0", false},
		{"admin", "D1", "delete", "/a/fan/0", true},
		{"admin", "D1", "patch", "/a/fan/0", false},
		{"owner", "D2", "get", "/a/light/0", false},
		{"", "D1", "get", "/a/light/0", false},
	}

	for _, c := range cases {
		assert.Equal(t, c.allowed, m.Verify(c.sid, c.di, c.rm, c.uri),
			"%+v", c)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	m := NewManager()

	a1, created := m.Create("D1", "u1")
	assert.True(t, created)
	a2, created := m.Create("D1", "u2")
	assert.False(t, created)
	assert.Equal(t, a1.Id, a2.Id)
	assert.Equal(t, "u1", a2.OwnerId)
	assert.Equal(t, []string{a1.Id}, m.Ids())
}

func TestDeleteAce(t *testing.T) {
	m := NewManager()
	a, _ := m.Create("D1", "owner")

	ids, err := m.AddAces(a.Id, []Ace{
		lightAce("u1", PERM_READ),
		lightAce("u2", PERM_READ),
	})
	require.NoError(t, err)

	require.NoError(t, m.DeleteAce(a.Id, ids[0]))
	assert.False(t, m.Verify("u1", "D1", "get", "/a/light/0"))
	assert.True(t, m.Verify("u2", "D1", "get", "/a/light/0"))

	assert.True(t, cxutil.IsNotFound(m.DeleteAce(a.Id, ids[0])))

	require.NoError(t, m.DeleteAce(a.Id, ""))
	got, err := m.Get(a.Id)
	require.NoError(t, err)
	assert.Empty(t, got.Aces)

	require.NoError(t, m.Delete(a.Id))
	_, err = m.Get(a.Id)
	assert.True(t, cxutil.IsNotFound(err))
	assert.True(t, cxutil.IsNotFound(m.Delete(a.Id)))
}

func TestParseAces(t *testing.T) {
	aces, err := ParseAces(map[string]interface{}{
		"aclist": []interface{}{
			map[string]interface{}{
				"subjectuuid": "u1",
				"stype":       uint64(1),
				"permission":  uint64(PERM_READ),
				"resources": []interface{}{
					map[string]interface{}{
						"href": "/a/light/0",
						"rt":   []interface{}{"core.light"},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, aces, 1)
	assert.Equal(t, SUBJECT_USER, aces[0].SubjectType)
	assert.Equal(t, PERM_READ, aces[0].Permission)
	assert.Equal(t, []string{"core.light"}, aces[0].Resources[0].Rt)

	bad := []map[string]interface{}{
		{},
		{"aclist": "x"},
		{"aclist": []interface{}{"x"}},
		{"aclist": []interface{}{map[string]interface{}{"permission": 1}}},
		{"aclist": []interface{}{map[string]interface{}{
			"subjectuuid": "u1", "permission": "rw"}}},
		{"aclist": []interface{}{map[string]interface{}{
			"subjectuuid": "u1", "permission": 2,
			"resources": []interface{}{map[string]interface{}{}}}}},
	}
	for i, val := range bad {
		_, err := ParseAces(val)
		assert.True(t, cxutil.IsBadRequest(err), "case %d", i)
	}
}

func TestVerifyResource(t *testing.T) {
	m := NewManager()
	m.Create("D1", "owner")
	s := newServer(t, m)
	p := sesntest.NewPeer("p")

	rsp, val := do(t, s, p, cxcoap.CreateGet(
		"/oic/acl/verify?sid=owner&di=D1&rm=get&uri=/a/light/0",
		cxcoap.OBSERVE_NONE, []byte{1}))
	assert.Equal(t, coap.Content, rsp.Code)
	assert.Equal(t, "Allowed", val["gp"])

	_, val = do(t, s, p, cxcoap.CreateGet(
		"/oic/acl/verify?sid=other&di=D1&rm=get&uri=/a/light/0",
		cxcoap.OBSERVE_NONE, []byte{1}))
	assert.Equal(t, "Denied", val["gp"])

	rsp, _ = do(t, s, p, cxcoap.CreateGet("/oic/acl/verify?sid=owner",
		cxcoap.OBSERVE_NONE, []byte{1}))
	assert.Equal(t, coap.BadRequest, rsp.Code)
}

func TestIdResourceLifecycle(t *testing.T) {
	m := NewManager()
	s := newServer(t, m)
	p := sesntest.NewPeer("p")
	p.User = "owner"

	rsp, val := do(t, s, p, cxcoap.CreatePut("/oic/acl/id?di=D1", []byte{1}, nil))
	require.Equal(t, coap.Created, rsp.Code)
	aclId := val["aclid"].(string)
	assert.Equal(t, "owner", val["oid"])

	rsp, val = do(t, s, p, cxcoap.CreatePut("/oic/acl/id?di=D1", []byte{1}, nil))
	assert.Equal(t, coap.Changed, rsp.Code)
	assert.Equal(t, aclId, val["aclid"])

	_, val = do(t, s, p, cxcoap.CreateGet("/oic/acl/id?di=D1",
		cxcoap.OBSERVE_NONE, []byte{1}))
	assert.Equal(t, aclId, val["aclid"])

	// Observe the acl from a second peer.
	obs := sesntest.NewPeer("obs")
	obsReq := cxcoap.CreateGet("/oic/acl/id/"+aclId, cxcoap.OBSERVE_SUBSCRIBE,
		[]byte{7})
	rsp, val = do(t, s, obs, obsReq)
	require.Equal(t, coap.Content, rsp.Code)
	assert.Equal(t, "D1", val["di"])
	assert.Empty(t, val["aclist"])

	body, err := cxutil.EncodeCborMap(map[string]interface{}{
		"aclist": []interface{}{
			map[string]interface{}{
				"subjectuuid": "guest",
				"stype":       1,
				"permission":  PERM_READ,
				"resources": []interface{}{
					map[string]interface{}{"href": "/a/light/0"},
				},
			},
		},
	})
	require.NoError(t, err)

	rsp, val = do(t, s, p, cxcoap.CreatePost("/oic/acl/id/"+aclId,
		[]byte{2}, body))
	require.Equal(t, coap.Changed, rsp.Code)
	aceIds := val["aceid"].([]interface{})
	require.Len(t, aceIds, 1)

	note, err := obs.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, note.Token)
	nval, err := cxutil.DecodeCborMap(note.Payload)
	require.NoError(t, err)
	assert.Len(t, nval["aclist"], 1)

	assert.True(t, m.Verify("guest", "D1", "get", "/a/light/0"))

	// Unsubscribe; later changes are not pushed.
	do(t, s, obs, cxcoap.CreateGet("/oic/acl/id/"+aclId,
		cxcoap.OBSERVE_UNSUBSCRIBE, []byte{7}))

	rsp, _ = do(t, s, p, cxcoap.CreateDelete(
		"/oic/acl/id/"+aclId+"?aceid="+aceIds[0].(string), []byte{3}, nil))
	assert.Equal(t, coap.Deleted, rsp.Code)
	assert.Equal(t, 3, obs.NumRsps())

	rsp, _ = do(t, s, p, cxcoap.CreateDelete("/oic/acl/id/"+aclId,
		[]byte{4}, nil))
	assert.Equal(t, coap.Deleted, rsp.Code)

	rsp, _ = do(t, s, p, cxcoap.CreateGet("/oic/acl/id/"+aclId,
		cxcoap.OBSERVE_NONE, []byte{5}))
	assert.Equal(t, coap.NotFound, rsp.Code)
}

func TestIdResourceErrors(t *testing.T) {
	m := NewManager()
	s := newServer(t, m)
	p := sesntest.NewPeer("p")

	rsp, _ := do(t, s, p, cxcoap.CreatePut("/oic/acl/id", []byte{1}, nil))
	assert.Equal(t, coap.BadRequest, rsp.Code)

	rsp, _ = do(t, s, p, cxcoap.CreateGet("/oic/acl/id?di=nope",
		cxcoap.OBSERVE_NONE, []byte{1}))
	assert.Equal(t, coap.NotFound, rsp.Code)

	rsp, _ = do(t, s, p, cxcoap.CreatePost("/oic/acl/id", []byte{1}, nil))
	assert.Equal(t, coap.BadRequest, rsp.Code)

	rsp, _ = do(t, s, p, cxcoap.CreateGet("/oic/acl/id/nope",
		cxcoap.OBSERVE_SUBSCRIBE, []byte{1}))
	assert.Equal(t, coap.NotFound, rsp.Code)
}
