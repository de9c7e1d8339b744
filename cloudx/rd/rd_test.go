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

package rd

import (
	"testing"

	"github.com/runtimeco/go-coap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/presence"
	"mynewt.apache.org/newtcloud/cloudx/sesn/sesntest"
)

func setup(t *testing.T) (*Directory, *presence.Notifier, *oic.Server) {
	prs := presence.NewNotifier(presence.NewMemStore())
	d := NewDirectory(prs)

	s := oic.NewServer()
	require.NoError(t, s.AddResource(d.Resource()))
	require.NoError(t, s.AddResource(d.PresenceResource()))
	return d, prs, s
}

func recv(t *testing.T, p *sesntest.Peer) (*cxcoap.Msg, map[string]interface{}) {
	rsp, err := p.Recv()
	require.NoError(t, err)

	m, err := cxutil.DecodeCborMap(rsp.Payload)
	require.NoError(t, err)
	return rsp, m
}

func publishBody(t *testing.T, di string, hrefs ...string) []byte {
	links := make([]interface{}, len(hrefs))
	for i, h := range hrefs {
		links[i] = map[string]interface{}{
			"href": h,
			"rt":   []interface{}{"core.light"},
			"if":   []interface{}{"oic.if.baseline"},
		}
	}

	b, err := cxutil.EncodeCborMap(map[string]interface{}{
		"di":    di,
		"ttl":   60,
		"links": links,
	})
	require.NoError(t, err)
	return b
}

func TestPublishDrivesPresence(t *testing.T) {
	_, prs, s := setup(t)

	obs := sesntest.NewPeer("obs")
	s.Handle(obs, cxcoap.CreateGet("/oic/ad?di=D1", cxcoap.OBSERVE_SUBSCRIBE,
		[]byte{9}))
	rsp, val := recv(t, obs)
	require.Equal(t, coap.Content, rsp.Code)
	assert.Empty(t, val["links"])
	assert.Equal(t, 1, prs.NumResourceObservers("D1"))

	dev := sesntest.NewPeer("dev")
	dev.Device = "D1"

	// Publish, republish, unpublish.
	s.Handle(dev, cxcoap.CreatePost("/oic/rd", []byte{1},
		publishBody(t, "D1", "/a/light/0")))
	rsp, val = recv(t, dev)
	require.Equal(t, coap.Changed, rsp.Code)
	assert.Len(t, val["links"], 1)

	s.Handle(dev, cxcoap.CreatePost("/oic/rd", []byte{2},
		publishBody(t, "D1", "/a/light/0")))
	recv(t, dev)

	s.Handle(dev, cxcoap.CreateDelete("/oic/rd?di=D1&href=/a/light/0",
		[]byte{3}, nil))
	rsp, _ = recv(t, dev)
	require.Equal(t, coap.Deleted, rsp.Code)

	for i, trg := range []presence.Trigger{
		presence.TRIGGER_CREATED,
		presence.TRIGGER_CHANGED,
		presence.TRIGGER_DELETED,
	} {
		note, val := recv(t, obs)
		assert.Equal(t, []byte{9}, note.Token)
		assert.EqualValues(t, i+1, val["non"])
		assert.EqualValues(t, trg, val["trg"])
		assert.Equal(t, "/a/light/0", val["href"])
		assert.EqualValues(t, 60, val["ttl"])
	}

	// Cancel the observation.
	s.Handle(obs, cxcoap.CreateGet("/oic/ad?di=D1",
		cxcoap.OBSERVE_UNSUBSCRIBE, []byte{9}))
	recv(t, obs)
	assert.Equal(t, 0, prs.NumResourceObservers("D1"))
}

func TestRdGet(t *testing.T) {
	d, _, s := setup(t)
	d.Publish("D1", []Link{{Href: "/b"}, {Href: "/a"}})
	d.Publish("D2", []Link{{Href: "/c"}})

	p := sesntest.NewPeer("p")

	s.Handle(p, cxcoap.CreateGet("/oic/rd", cxcoap.OBSERVE_NONE, []byte{1}))
	_, val := recv(t, p)
	assert.Equal(t, []interface{}{"D1", "D2"}, val["devices"])

	s.Handle(p, cxcoap.CreateGet("/oic/rd?di=D1", cxcoap.OBSERVE_NONE,
		[]byte{2}))
	_, val = recv(t, p)
	links := val["links"].([]interface{})
	require.Len(t, links, 2)
	assert.Equal(t, "/a", links[0].(map[string]interface{})["href"])
	assert.Equal(t, "/b", links[1].(map[string]interface{})["href"])

	// Plain presence read reports links of every requested device.
	s.Handle(p, cxcoap.CreateGet("/oic/ad?di=D1;D2", cxcoap.OBSERVE_NONE,
		[]byte{3}))
	_, val = recv(t, p)
	assert.Len(t, val["links"], 3)
}

func TestUnpublishAll(t *testing.T) {
	d, _, _ := setup(t)
	d.Publish("D1", []Link{{Href: "/b"}, {Href: "/a"}})

	evs := d.Unpublish("D1", nil)
	require.Len(t, evs, 2)
	assert.Equal(t, "/a", evs[0].Href)
	assert.Equal(t, presence.TRIGGER_DELETED, evs[0].Trigger)
	assert.Empty(t, d.Links("D1"))
	assert.Empty(t, d.DeviceIds())
}

func TestRdErrors(t *testing.T) {
	_, _, s := setup(t)

	dev := sesntest.NewPeer("dev")
	dev.Device = "D1"

	s.Handle(dev, cxcoap.CreatePost("/oic/rd", []byte{1},
		publishBody(t, "D2", "/a")))
	rsp, _ := recv(t, dev)
	assert.Equal(t, coap.BadRequest, rsp.Code)

	s.Handle(dev, cxcoap.CreateDelete("/oic/rd?di=D1", []byte{2}, nil))
	rsp, _ = recv(t, dev)
	assert.Equal(t, coap.NotFound, rsp.Code)

	s.Handle(dev, cxcoap.CreateGet("/oic/ad", cxcoap.OBSERVE_SUBSCRIBE,
		[]byte{3}))
	rsp, _ = recv(t, dev)
	assert.Equal(t, coap.BadRequest, rsp.Code)
}

func TestParsePublish(t *testing.T) {
	di, links, err := ParsePublish(map[string]interface{}{
		"di":    "D1",
		"links": []interface{}{map[string]interface{}{"href": "/a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "D1", di)
	require.Len(t, links, 1)
	assert.Equal(t, DFLT_TTL, links[0].Ttl)

	bad := []map[string]interface{}{
		{},
		{"di": "D1"},
		{"di": "D1", "links": []interface{}{}},
		{"di": "D1", "links": []interface{}{"x"}},
		{"di": "D1", "links": []interface{}{map[string]interface{}{}}},
		{"di": "D1", "ttl": "soon",
			"links": []interface{}{map[string]interface{}{"href": "/a"}}},
	}
	for i, val := range bad {
		_, _, err := ParsePublish(val)
		assert.True(t, cxutil.IsBadRequest(err), "case %d", i)
	}
}
