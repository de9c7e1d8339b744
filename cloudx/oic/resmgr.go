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

package oic

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/runtimeco/go-coap"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
)

// Handles one request.  The handler must send exactly one response through
// src, now or later; observe requests may be followed by notifications.
type ResFn func(src sesn.Peer, req *cxcoap.Msg)

// A resource handles its URI and every path below it.
type Resource struct {
	Uri      string
	GetCb    ResFn
	PostCb   ResFn
	PutCb    ResFn
	DeleteCb ResFn
}

type ResMgr struct {
	mtx       sync.Mutex
	uriResMap map[string]Resource
}

func NewResMgr() *ResMgr {
	return &ResMgr{
		uriResMap: map[string]Resource{},
	}
}

func normalizeUri(uri string) string {
	return "/" + strings.Join(cxcoap.Segments(uri), "/")
}

func (rm *ResMgr) Add(r Resource) error {
	rm.mtx.Lock()
	defer rm.mtx.Unlock()

	uri := normalizeUri(r.Uri)
	if _, ok := rm.uriResMap[uri]; ok {
		return fmt.Errorf("Registration of duplicate CoAP resource: %s", uri)
	}

	r.Uri = uri
	rm.uriResMap[uri] = r
	return nil
}

// Finds the resource with the longest URI that is a segment-wise prefix of
// path.
func (rm *ResMgr) Lookup(path string) (Resource, bool) {
	rm.mtx.Lock()
	defer rm.mtx.Unlock()

	segs := cxcoap.Segments(path)
	for i := len(segs); i >= 0; i-- {
		uri := "/" + strings.Join(segs[:i], "/")
		if r, ok := rm.uriResMap[uri]; ok {
			return r, true
		}
	}

	return Resource{}, false
}

func (rm *ResMgr) Uris() []string {
	rm.mtx.Lock()
	defer rm.mtx.Unlock()

	uris := make([]string, 0, len(rm.uriResMap))
	for uri := range rm.uriResMap {
		uris = append(uris, uri)
	}

	sort.Strings(uris)
	return uris
}

func (rm *ResMgr) Access(src sesn.Peer, req *cxcoap.Msg) {
	r, ok := rm.Lookup(req.Path)
	if !ok {
		log.Debugf("Incoming CoAP message specifies unknown resource: %s",
			req.Path)
		Respond(src, req, coap.NotFound, nil)
		return
	}

	var cb ResFn
	switch req.Code {
	case coap.GET:
		cb = r.GetCb
	case coap.POST:
		cb = r.PostCb
	case coap.PUT:
		cb = r.PutCb
	case coap.DELETE:
		cb = r.DeleteCb
	}

	if cb == nil {
		log.Debugf("Don't know how to handle CoAP message with code=%d (%s) "+
			"for %s", req.Code, req.Code.String(), r.Uri)
		Respond(src, req, coap.MethodNotAllowed, nil)
		return
	}

	cb(src, req)
}

// Sends a response, logging transmit failures.
func Respond(src sesn.Peer, req *cxcoap.Msg, code coap.COAPCode,
	payload []byte) {

	rsp := cxcoap.CreateRsp(req, code, payload)
	if req.Observe == cxcoap.OBSERVE_SUBSCRIBE && rsp.IsSuccess() {
		rsp.ObsSeq = OBS_SEQ_FIRST
	}

	if err := src.TxRsp(rsp); err != nil {
		log.Debugf("[%s] failed to send response to %s: %s",
			src.Id(), req.Uri(), err.Error())
	}
}

// Responds with the code matching err.
func RespondErr(src sesn.Peer, req *cxcoap.Msg, err error) {
	code := cxutil.ErrorCode(err)
	if code == coap.InternalServerError {
		log.Errorf("[%s] %s %s failed: %s",
			src.Id(), req.Code.String(), req.Uri(), err.Error())
	} else {
		log.Debugf("[%s] %s %s rejected: %s",
			src.Id(), req.Code.String(), req.Uri(), err.Error())
	}

	Respond(src, req, code, nil)
}

// Synchronous handler operating on decoded CBOR.  A nil result means an
// empty payload.
type CborFn func(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error)

func cborResFn(fn CborFn) ResFn {
	if fn == nil {
		return nil
	}

	return func(src sesn.Peer, req *cxcoap.Msg) {
		val, err := cxutil.DecodeCborMap(req.Payload)
		if err != nil {
			RespondErr(src, req, err)
			return
		}

		code, m, err := fn(src, req, val)
		if err != nil {
			RespondErr(src, req, err)
			return
		}

		var b []byte
		if m != nil {
			b, err = cxutil.EncodeCborMap(m)
			if err != nil {
				RespondErr(src, req, err)
				return
			}
		}

		Respond(src, req, code, b)
	}
}

func NewCborResource(uri string,
	getCb CborFn, postCb CborFn, putCb CborFn, deleteCb CborFn) Resource {

	return Resource{
		Uri:      uri,
		GetCb:    cborResFn(getCb),
		PostCb:   cborResFn(postCb),
		PutCb:    cborResFn(putCb),
		DeleteCb: cborResFn(deleteCb),
	}
}

// A read-only resource with a constant representation.
func NewFixedResource(uri string, val map[string]interface{}) Resource {
	return NewCborResource(
		// URI.
		uri,

		// Get.
		func(sesn.Peer, *cxcoap.Msg,
			map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

			return coap.Content, val, nil
		},

		nil, nil, nil)
}
