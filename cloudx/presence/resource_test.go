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

package presence

import (
	"context"
	"testing"

	"github.com/runtimeco/go-coap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/sesn/sesntest"
)

func recvList(t *testing.T, p *sesntest.Peer) (*cxcoap.Msg, map[string]string) {
	rsp, err := p.Recv()
	require.NoError(t, err)
	require.Equal(t, coap.Content, rsp.Code)

	m, err := cxutil.DecodeCborMap(rsp.Payload)
	require.NoError(t, err)
	return rsp, prsList(t, m)
}

func TestDeviceResource(t *testing.T) {
	ctx := context.Background()
	n := NewNotifier(NewMemStore())
	_, err := n.SetDeviceState(ctx, "D1", DEV_STATE_ON)
	require.NoError(t, err)

	s := oic.NewServer()
	require.NoError(t, s.AddResource(n.DeviceResource()))

	p := sesntest.NewPeer("obs")

	// Plain get.
	s.Handle(p, cxcoap.CreateGet("/oic/prs?di=D1;D2", cxcoap.OBSERVE_NONE,
		[]byte{1}))
	_, states := recvList(t, p)
	assert.Equal(t, map[string]string{"D1": "on", "D2": "off"}, states)
	assert.Equal(t, 0, n.NumDeviceObservers("D1"))

	// Observe.
	s.Handle(p, cxcoap.CreateGet("/oic/prs?di=D1&di=D2",
		cxcoap.OBSERVE_SUBSCRIBE, []byte{2}))
	_, states = recvList(t, p)
	assert.Equal(t, map[string]string{"D1": "on", "D2": "off"}, states)
	assert.Equal(t, 1, n.NumDeviceObservers("D1"))
	assert.Equal(t, 1, n.NumDeviceObservers("D2"))

	cnt, err := n.SetDeviceState(ctx, "D2", DEV_STATE_ON)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	rsp, states := recvList(t, p)
	assert.Equal(t, []byte{2}, rsp.Token)
	assert.Equal(t, map[string]string{"D2": "on"}, states)

	// Cancel.
	s.Handle(p, cxcoap.CreateGet("/oic/prs?di=D1;D2",
		cxcoap.OBSERVE_UNSUBSCRIBE, []byte{2}))
	recvList(t, p)
	assert.Equal(t, 0, n.NumDeviceObservers("D1"))
	assert.Equal(t, 0, n.NumDeviceObservers("D2"))

	cnt, err = n.SetDeviceState(ctx, "D1", DEV_STATE_OFF)
	require.NoError(t, err)
	assert.Equal(t, 0, cnt)
	assert.Equal(t, 4, p.NumRsps())
}

func TestDeviceResourceErrors(t *testing.T) {
	n := NewNotifier(NewMemStore())

	s := oic.NewServer()
	require.NoError(t, s.AddResource(n.DeviceResource()))

	p := sesntest.NewPeer("obs")

	s.Handle(p, cxcoap.CreateGet("/oic/prs", cxcoap.OBSERVE_SUBSCRIBE,
		[]byte{1}))
	rsp, err := p.Recv()
	require.NoError(t, err)
	assert.Equal(t, coap.BadRequest, rsp.Code)

	s.Handle(p, cxcoap.CreatePut("/oic/prs?di=D1", []byte{2}, nil))
	rsp, err = p.Recv()
	require.NoError(t, err)
	assert.Equal(t, coap.MethodNotAllowed, rsp.Code)
}
