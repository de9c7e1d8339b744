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
	"github.com/runtimeco/go-coap"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/route"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
)

const (
	RES_ACL_ID_URI = "/oic/acl/id"
)

func requireQuery(req *cxcoap.Msg, key string) (string, error) {
	v, ok := req.QueryValue(key)
	if !ok || v == "" {
		return "", cxutil.FmtBadRequestError("missing query \"%s\"", key)
	}
	return v, nil
}

// The policy endpoint consulted before routing.
func (m *Manager) VerifyResource(uri string) oic.Resource {
	return oic.NewCborResource(uri,
		func(src sesn.Peer, req *cxcoap.Msg,
			val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

			di, err := requireQuery(req, "di")
			if err != nil {
				return 0, nil, err
			}
			rm, err := requireQuery(req, "rm")
			if err != nil {
				return 0, nil, err
			}

			sid, _ := req.QueryValue("sid")
			uri, _ := req.QueryValue("uri")

			d := route.DECISION_DENIED
			if m.Verify(sid, di, rm, uri) {
				d = route.DECISION_ALLOWED
			}

			return coap.Content, map[string]interface{}{
				route.DECISION_KEY: d.String(),
			}, nil
		},
		nil, nil, nil)
}

// Extracts the acl id from /oic/acl/id/<aclid>.
func aclIdFromPath(path string) string {
	segs := cxcoap.Segments(path)
	base := cxcoap.Segments(RES_ACL_ID_URI)
	if len(segs) <= len(base) {
		return ""
	}
	return segs[len(base)]
}

func (m *Manager) aclIdGet(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	aclId := aclIdFromPath(req.Path)
	if aclId == "" {
		di, err := requireQuery(req, "di")
		if err != nil {
			return 0, nil, err
		}

		a, ok := m.FindByDevice(di)
		if !ok {
			return 0, nil, cxutil.FmtNotFoundError("no acl for %s", di)
		}
		return coap.Content, map[string]interface{}{
			"aclid": a.Id,
			"oid":   a.OwnerId,
		}, nil
	}

	var a *Acl
	var err error

	switch req.Observe {
	case cxcoap.OBSERVE_SUBSCRIBE:
		a, err = m.Subscribe(aclId, src.Id(), oic.RequestId(src, req),
			oic.NotifyFn(src, req))

	case cxcoap.OBSERVE_UNSUBSCRIBE:
		m.Unsubscribe(aclId, oic.RequestId(src, req))
		a, err = m.Get(aclId)

	default:
		a, err = m.Get(aclId)
	}

	if err != nil {
		return 0, nil, err
	}
	return coap.Content, a.Map(), nil
}

func (m *Manager) aclIdPut(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	di, err := requireQuery(req, "di")
	if err != nil {
		return 0, nil, err
	}

	oid, ok := req.QueryValue("oid")
	if !ok {
		oid = src.UserId()
	}

	a, created := m.Create(di, oid)

	code := coap.Changed
	if created {
		code = coap.Created
	}
	return code, map[string]interface{}{
		"aclid": a.Id,
		"oid":   a.OwnerId,
	}, nil
}

func (m *Manager) aclIdPost(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	aclId := aclIdFromPath(req.Path)
	if aclId == "" {
		return 0, nil, cxutil.NewBadRequestError("missing acl id")
	}

	aces, err := ParseAces(val)
	if err != nil {
		return 0, nil, err
	}

	ids, err := m.AddAces(aclId, aces)
	if err != nil {
		return 0, nil, err
	}

	return coap.Changed, map[string]interface{}{"aceid": ids}, nil
}

func (m *Manager) aclIdDelete(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	aclId := aclIdFromPath(req.Path)
	if aclId == "" {
		return 0, nil, cxutil.NewBadRequestError("missing acl id")
	}

	var err error
	if aceId, ok := req.QueryValue("aceid"); ok {
		err = m.DeleteAce(aclId, aceId)
	} else {
		err = m.Delete(aclId)
	}

	if err != nil {
		return 0, nil, err
	}
	return coap.Deleted, nil, nil
}

// /oic/acl/id and /oic/acl/id/<aclid>.
func (m *Manager) IdResource() oic.Resource {
	return oic.NewCborResource(RES_ACL_ID_URI,
		m.aclIdGet, m.aclIdPost, m.aclIdPut, m.aclIdDelete)
}
