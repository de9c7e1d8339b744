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
	"github.com/runtimeco/go-coap"
	"github.com/spf13/cast"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
)

// The acting user: the uid query or body field, else the connection's
// signed-in user.
func actingUser(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (string, error) {

	if uid, ok := req.QueryValue("uid"); ok {
		return uid, nil
	}
	if uid := cast.ToString(val["uid"]); uid != "" {
		return uid, nil
	}
	if uid := src.UserId(); uid != "" {
		return uid, nil
	}

	return "", cxutil.NewBadRequestError("no user id")
}

func (m *Manager) inviteGet(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	uid, err := actingUser(src, req, val)
	if err != nil {
		return 0, nil, err
	}

	switch req.Observe {
	case cxcoap.OBSERVE_SUBSCRIBE:
		return coap.Content, m.Subscribe(uid, src.Id(),
			oic.RequestId(src, req), oic.NotifyFn(src, req)), nil

	case cxcoap.OBSERVE_UNSUBSCRIBE:
		m.Unsubscribe(uid, oic.RequestId(src, req))
	}

	return coap.Content, m.View(uid), nil
}

func (m *Manager) invitePost(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	uid, err := actingUser(src, req, val)
	if err != nil {
		return 0, nil, err
	}

	invs, err := ParseInvites(uid, val)
	if err != nil {
		return 0, nil, err
	}

	for _, inv := range invs {
		if err := m.Add(inv); err != nil {
			return 0, nil, err
		}
	}

	return coap.Changed, nil, nil
}

func (m *Manager) inviteDelete(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	uid, err := actingUser(src, req, val)
	if err != nil {
		return 0, nil, err
	}

	gid, ok := req.QueryValue("gid")
	if !ok {
		return 0, nil, cxutil.NewBadRequestError("missing query \"gid\"")
	}
	mid, _ := req.QueryValue("mid")

	if err := m.Delete(uid, gid, mid); err != nil {
		return 0, nil, err
	}

	return coap.Deleted, nil, nil
}

// /oic/invite: GET (observable) lists, POST invites, DELETE cancels or
// answers.
func (m *Manager) Resource() oic.Resource {
	return oic.NewCborResource(RES_INVITE_URI,
		m.inviteGet, m.invitePost, nil, m.inviteDelete)
}
