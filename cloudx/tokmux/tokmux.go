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

// Package tokmux lets many callers share one connection to a peer.  Each
// outgoing request's token is replaced with a connection-local token and the
// substitution is reversed when the matching response arrives.
package tokmux

import (
	"encoding/binary"
	"sync"

	"github.com/runtimeco/go-coap"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
)

// The resource presence URI.  Older device firmware subscribes to it with
// plain GETs.
const RES_PRESENCE_URI = "/oic/ad"

// Receives the response (or notification) for one exchange.  The response
// carries the caller's original token.
type RspFn func(rsp *cxcoap.Msg)

// Transmits a rewritten request on the owning connection.
type TxFn func(req *cxcoap.Msg) error

type exchange struct {
	originToken []byte
	internal    uint64
	req         *cxcoap.Msg
	rspFn       RspFn
	mode        cxcoap.ObserveMode
}

// The multiplexer is the owner of the exchanges it points to.  It is bound
// to exactly one connection.
type Multiplexer struct {
	// Name used in log messages; usually the session id.
	Name string

	// Upgrades plain requests to RES_PRESENCE_URI into subscriptions.  This
	// only exists for legacy firmware; remove it once no such clients
	// remain.  Do not extend it to other URIs.
	LegacyPresenceUpgrade bool

	txFn TxFn

	tokenMtx  sync.Mutex
	nextToken uint64

	// Guards exchanges and subs.
	mtx       sync.Mutex
	exchanges map[uint64]*exchange
	subs      map[cxcoap.Token]uint64
	closed    bool
}

func New(txFn TxFn) *Multiplexer {
	return &Multiplexer{
		LegacyPresenceUpgrade: true,
		txFn:                  txFn,
		exchanges:             map[uint64]*exchange{},
		subs:                  map[cxcoap.Token]uint64{},
	}
}

func (x *Multiplexer) allocToken() uint64 {
	x.tokenMtx.Lock()
	defer x.tokenMtx.Unlock()

	x.nextToken++
	return x.nextToken
}

func encodeToken(t uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, t)
	return b
}

func decodeToken(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

func (x *Multiplexer) observeMode(req *cxcoap.Msg) cxcoap.ObserveMode {
	if req.Observe == cxcoap.OBSERVE_NONE &&
		x.LegacyPresenceUpgrade &&
		req.Code == coap.GET &&
		req.Path == RES_PRESENCE_URI {

		return cxcoap.OBSERVE_SUBSCRIBE
	}

	return req.Observe
}

// Sends req to the peer.  The result is delivered asynchronously to rspFn.
func (x *Multiplexer) SendRequest(req *cxcoap.Msg, rspFn RspFn) error {
	ot, err := cxcoap.NewToken(req.Token)
	if err != nil {
		return err
	}

	mode := x.observeMode(req)

	x.mtx.Lock()
	if x.closed {
		x.mtx.Unlock()
		return cxutil.NewSesnClosedError(
			"Attempt to send a request over a closed connection")
	}

	var internal uint64
	switch mode {
	case cxcoap.OBSERVE_UNSUBSCRIBE:
		var ok bool
		internal, ok = x.subs[ot]
		if !ok {
			x.mtx.Unlock()
			return cxutil.FmtNotFoundError(
				"no matching subscription; token=%x", req.Token)
		}
		delete(x.subs, ot)

	case cxcoap.OBSERVE_SUBSCRIBE:
		// A repeated subscribe refreshes the existing registration; the
		// peer sees it on the same token and the new callback takes over.
		if cur, ok := x.subs[ot]; ok && x.exchanges[cur] != nil {
			internal = cur
			log.Debugf("[%s] refreshing subscription; origin=%x",
				x.Name, req.Token)
		} else {
			internal = x.allocToken()
			x.subs[ot] = internal
		}

	default:
		internal = x.allocToken()
	}

	ex := &exchange{
		originToken: ot.Bytes(),
		internal:    internal,
		req:         req.Clone(),
		rspFn:       rspFn,
		mode:        mode,
	}
	x.exchanges[internal] = ex
	x.mtx.Unlock()

	out := req.Clone()
	out.Token = encodeToken(internal)
	if mode == cxcoap.OBSERVE_SUBSCRIBE {
		out.Observe = cxcoap.OBSERVE_SUBSCRIBE
	}

	cxutil.LogAddExchange(x.Name, ex.originToken, out.Token)

	if err := x.txFn(out); err != nil {
		x.mtx.Lock()
		if x.exchanges[internal] == ex {
			delete(x.exchanges, internal)
		}
		if mode == cxcoap.OBSERVE_SUBSCRIBE && x.subs[ot] == internal {
			delete(x.subs, ot)
		}
		x.mtx.Unlock()
		return err
	}

	return nil
}

// Matches a response from the peer to its exchange and hands it, with the
// original token restored, to the exchange's callback.
func (x *Multiplexer) OnResponse(rsp *cxcoap.Msg) error {
	internal, ok := decodeToken(rsp.Token)
	if !ok {
		return cxutil.NewOrphanResponseError(rsp.Token)
	}

	x.mtx.Lock()
	ex := x.exchanges[internal]
	if ex == nil {
		x.mtx.Unlock()
		return cxutil.NewOrphanResponseError(rsp.Token)
	}

	// A subscription stays registered only while the peer keeps accepting
	// it; an error response ends it like any other exchange.
	continuous := ex.mode == cxcoap.OBSERVE_SUBSCRIBE && rsp.IsSuccess()
	if !continuous {
		delete(x.exchanges, internal)
		if ot, err := cxcoap.NewToken(ex.originToken); err == nil {
			if x.subs[ot] == internal {
				delete(x.subs, ot)
			}
		}
		cxutil.LogRemoveExchange(x.Name, rsp.Token)
	}
	x.mtx.Unlock()

	out := rsp.Clone()
	out.Token = append([]byte(nil), ex.originToken...)
	if out.Path == "" {
		out.Path = ex.req.Path
	}

	ex.rspFn(out)
	return nil
}

// Fails every pending exchange with a terminal response carrying code.  The
// multiplexer rejects new requests afterwards.
func (x *Multiplexer) Close(code coap.COAPCode) {
	x.mtx.Lock()
	exs := make([]*exchange, 0, len(x.exchanges))
	for _, ex := range x.exchanges {
		exs = append(exs, ex)
	}
	x.exchanges = map[uint64]*exchange{}
	x.subs = map[cxcoap.Token]uint64{}
	x.closed = true
	x.mtx.Unlock()

	for _, ex := range exs {
		log.Debugf("[%s] failing exchange; origin=%x code=%s",
			x.Name, ex.originToken, code.String())
		ex.rspFn(cxcoap.CreateRsp(
			&cxcoap.Msg{Token: ex.originToken, Path: ex.req.Path}, code, nil))
	}
}

func (x *Multiplexer) NumPending() int {
	x.mtx.Lock()
	defer x.mtx.Unlock()

	return len(x.exchanges)
}

func (x *Multiplexer) NumSubscriptions() int {
	x.mtx.Lock()
	defer x.mtx.Unlock()

	return len(x.subs)
}

// Reports whether an active subscription exists for the origin token.
func (x *Multiplexer) Subscribed(originToken []byte) bool {
	ot, err := cxcoap.NewToken(originToken)
	if err != nil {
		return false
	}

	x.mtx.Lock()
	defer x.mtx.Unlock()

	_, ok := x.subs[ot]
	return ok
}
