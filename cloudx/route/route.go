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

// Package route relays requests addressed to /route/<device>/... to the
// named device once the policy service allows it.  URIs are rewritten in
// both directions so neither end sees the relay.
package route

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/runtimeco/go-coap"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
)

const (
	DFLT_PREFIX  = "/route"
	VERIFY_URI   = "/oic/acl/verify"
	IF_LINK_LIST = "oic.if.ll"

	DECISION_KEY = "gp"
)

type Decision int

const (
	DECISION_ALLOWED Decision = iota
	DECISION_DENIED
)

var decisionNameMap = map[Decision]string{
	DECISION_ALLOWED: "Allowed",
	DECISION_DENIED:  "Denied",
}

func (d Decision) String() string {
	return decisionNameMap[d]
}

func ParseDecision(s string) (Decision, bool) {
	for k, v := range decisionNameMap {
		if s == v {
			return k, true
		}
	}

	return DECISION_DENIED, false
}

// The policy service's answer to one verify request.
type Result struct {
	Decision Decision
	Payload  map[string]interface{}
}

type State int

const (
	STATE_RECEIVED State = iota
	STATE_VERIFYING
	STATE_ALLOWED
	STATE_DENIED
	STATE_TARGET_UNREACHABLE
	STATE_FORWARDING
	STATE_RESPONDED
)

var stateNameMap = map[State]string{
	STATE_RECEIVED:           "received",
	STATE_VERIFYING:          "verifying",
	STATE_ALLOWED:            "allowed",
	STATE_DENIED:             "denied",
	STATE_TARGET_UNREACHABLE: "target_unreachable",
	STATE_FORWARDING:         "forwarding",
	STATE_RESPONDED:          "responded",
}

func (s State) String() string {
	return stateNameMap[s]
}

// Observes the progress of each routed request.
type StateFn func(st State, code coap.COAPCode)

type Router struct {
	Prefix    string
	VerifyUri string

	// Optional.
	StateCb StateFn

	policy  sesn.ReqChannel
	devices sesn.DeviceRegistry

	// Active relayed observations: source id -> forward token -> relay.
	relayMtx sync.Mutex
	relays   map[string]map[string]*relay
}

// An observation relayed from a source to a device.
type relay struct {
	owner *routing
	fwd   *cxcoap.Msg
	ch    sesn.ReqChannel
}

func NewRouter(policy sesn.ReqChannel, devices sesn.DeviceRegistry) *Router {
	return &Router{
		Prefix:    DFLT_PREFIX,
		VerifyUri: VERIFY_URI,
		policy:    policy,
		devices:   devices,
		relays:    map[string]map[string]*relay{},
	}
}

func (r *Router) track(rt *routing, fwd *cxcoap.Msg, ch sesn.ReqChannel) {
	r.relayMtx.Lock()
	defer r.relayMtx.Unlock()

	m := r.relays[rt.src.Id()]
	if m == nil {
		m = map[string]*relay{}
		r.relays[rt.src.Id()] = m
	}
	m[string(fwd.Token)] = &relay{
		owner: rt,
		fwd:   fwd.Clone(),
		ch:    ch,
	}
}

// Forgets a relay.  If owner is non-nil, only that routing's relay is
// removed; a refreshed observation belongs to its newest routing.
func (r *Router) untrack(srcId string, fwdToken []byte, owner *routing) {
	r.relayMtx.Lock()
	defer r.relayMtx.Unlock()

	m := r.relays[srcId]
	if m == nil {
		return
	}

	key := string(fwdToken)
	if rl := m[key]; rl != nil && (owner == nil || rl.owner == owner) {
		delete(m, key)
	}
	if len(m) == 0 {
		delete(r.relays, srcId)
	}
}

// Number of observations currently relayed for a source.
func (r *Router) NumRelays(srcId string) int {
	r.relayMtx.Lock()
	defer r.relayMtx.Unlock()

	return len(r.relays[srcId])
}

// Cancels every observation relayed for a source that went away.  Each
// target is sent a deregistration on the observation's forward token.
// Returns the number of observations cancelled.
func (r *Router) DropSource(srcId string) int {
	r.relayMtx.Lock()
	m := r.relays[srcId]
	delete(r.relays, srcId)
	r.relayMtx.Unlock()

	for _, rl := range m {
		ureq := rl.fwd.Clone()
		ureq.Observe = cxcoap.OBSERVE_UNSUBSCRIBE
		ureq.Payload = nil

		err := rl.ch.TxReq(ureq, func(rsp *cxcoap.Msg) {
			log.Debugf("[%s] relayed observation of %s cancelled: %s",
				srcId, ureq.Path, rsp.Code.String())
		})
		if err != nil {
			log.Debugf("[%s] failed to cancel observation of %s: %s",
				srcId, ureq.Path, err.Error())
		}
	}

	return len(m)
}

// The route resource; every method is relayed.
func (r *Router) Resource() oic.Resource {
	return oic.Resource{
		Uri:      r.Prefix,
		GetCb:    r.Route,
		PostCb:   r.Route,
		PutCb:    r.Route,
		DeleteCb: r.Route,
	}
}

// Splits /<prefix>/<target>/<rest> into the target id and the
// target-relative path.
func (r *Router) parse(path string) (string, string, error) {
	prefix := cxcoap.Segments(r.Prefix)
	segs := cxcoap.Segments(path)

	if len(segs) < len(prefix) {
		return "", "", cxutil.FmtMalformedRouteError(
			"path outside route prefix: %s", path)
	}
	for i, s := range prefix {
		if segs[i] != s {
			return "", "", cxutil.FmtMalformedRouteError(
				"path outside route prefix: %s", path)
		}
	}

	segs = segs[len(prefix):]
	if len(segs) == 0 {
		return "", "", cxutil.FmtMalformedRouteError(
			"no target in route: %s", path)
	}

	return segs[0], "/" + strings.Join(segs[1:], "/"), nil
}

func (r *Router) routedPath(target string, rel string) string {
	p := "/" + strings.Join(cxcoap.Segments(r.Prefix), "/") + "/" + target
	if rel == "/" || rel == "" {
		return p
	}
	return p + rel
}

// Token used on the forwarded leg.  It is a function of the source and its
// own token, so an unsubscribe from the same source finds its subscription
// and sources that picked the same token do not collide.
func forwardToken(src sesn.Peer, token []byte) []byte {
	h := fnv.New64a()
	h.Write([]byte(src.Id()))
	h.Write([]byte{0})
	h.Write(token)

	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, h.Sum64())
	return b
}

// One routed request.
type routing struct {
	r   *Router
	src sesn.Peer
	req *cxcoap.Msg

	target   string
	rel      string
	fwdToken []byte

	mtx       sync.Mutex
	responded bool
	obsSeq    uint32
}

func (rt *routing) setState(st State, code coap.COAPCode) {
	log.Debugf("[%s] route %s %s: %s", rt.src.Id(), rt.req.Code.String(),
		rt.req.Path, st.String())

	if rt.r.StateCb != nil {
		rt.r.StateCb(st, code)
	}
}

// Delivers rsp to the source.  The first response is the terminal one;
// later ones are relayed only for observe requests.
func (rt *routing) deliver(rsp *cxcoap.Msg) {
	observing := rt.req.Observe == cxcoap.OBSERVE_SUBSCRIBE && rsp.IsSuccess()

	rt.mtx.Lock()
	first := !rt.responded
	rt.responded = true
	if observing {
		rt.obsSeq++
		rsp.ObsSeq = rt.obsSeq
	} else {
		rsp.ObsSeq = 0
	}
	rt.mtx.Unlock()

	if rt.req.Observe == cxcoap.OBSERVE_SUBSCRIBE && !rsp.IsSuccess() &&
		rt.fwdToken != nil {

		rt.r.untrack(rt.src.Id(), rt.fwdToken, rt)
	}

	if !first {
		if rt.req.Observe != cxcoap.OBSERVE_SUBSCRIBE {
			log.Debugf("[%s] dropping extra response for %s",
				rt.src.Id(), rt.req.Path)
			return
		}
		if !rsp.IsSuccess() {
			log.Debugf("[%s] observation of %s ended: %s",
				rt.src.Id(), rt.req.Path, rsp.Code.String())
		}
	} else {
		rt.setState(STATE_RESPONDED, rsp.Code)
	}

	if err := rt.src.TxRsp(rsp); err != nil {
		log.Debugf("[%s] failed to relay response: %s",
			rt.src.Id(), err.Error())
	}
}

func (rt *routing) respond(code coap.COAPCode, payload []byte) {
	rt.deliver(cxcoap.CreateRsp(rt.req, code, payload))
}

func (rt *routing) fail(err error) {
	code := cxutil.ErrorCode(err)
	if code == coap.InternalServerError {
		log.Errorf("[%s] route %s failed: %s",
			rt.src.Id(), rt.req.Path, err.Error())
	} else {
		log.Debugf("[%s] route %s failed: %s",
			rt.src.Id(), rt.req.Path, err.Error())
	}

	rt.respond(code, nil)
}

func (rt *routing) catch() {
	if r := recover(); r != nil {
		rt.fail(fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
	}
}

// Each parameter travels in its own Uri-Query option so values are never
// re-split.
func (r *Router) verifyReq(sid string, di string, rm string,
	uri string) *cxcoap.Msg {

	vreq := cxcoap.CreateGet(r.VerifyUri, cxcoap.OBSERVE_NONE,
		cxcoap.NewRandToken())
	vreq.Query = []string{
		"sid=" + sid,
		"di=" + di,
		"rm=" + rm,
		"uri=" + uri,
	}

	return vreq
}

// Authorizes and relays req.  Exactly one terminal response reaches src.
func (r *Router) Route(src sesn.Peer, req *cxcoap.Msg) {
	rt := &routing{
		r:   r,
		src: src,
		req: req.Clone(),
	}
	defer rt.catch()

	rt.setState(STATE_RECEIVED, 0)

	var err error
	rt.target, rt.rel, err = r.parse(req.Path)
	if err != nil {
		rt.fail(err)
		return
	}

	vreq := r.verifyReq(src.UserId(), rt.target, req.Method(), rt.rel)

	rt.setState(STATE_VERIFYING, 0)
	if err := r.policy.TxReq(vreq, rt.onVerify); err != nil {
		rt.fail(err)
	}
}

func parseVerifyRsp(rsp *cxcoap.Msg) (Result, error) {
	res := Result{}

	if rsp.Code != coap.Content {
		return res, cxutil.FmtPolicyResponseError(
			"verify failed with %s", rsp.Code.String())
	}

	m, err := cxutil.DecodeCborMap(rsp.Payload)
	if err != nil {
		return res, cxutil.FmtPolicyResponseError(
			"malformed verify response: %s", err.Error())
	}

	raw, ok := m[DECISION_KEY]
	if !ok {
		return res, cxutil.FmtPolicyResponseError(
			"verify response lacks \"%s\"", DECISION_KEY)
	}

	s, err := cast.ToStringE(raw)
	if err != nil {
		return res, cxutil.FmtPolicyResponseError(
			"malformed decision: %v", raw)
	}

	d, ok := ParseDecision(s)
	if !ok {
		return res, cxutil.FmtPolicyResponseError(
			"unknown decision: %s", s)
	}

	res.Decision = d
	res.Payload = m
	return res, nil
}

func (rt *routing) onVerify(vrsp *cxcoap.Msg) {
	defer rt.catch()

	res, err := parseVerifyRsp(vrsp)
	if err != nil {
		rt.fail(err)
		return
	}

	if res.Decision == DECISION_DENIED {
		rt.setState(STATE_DENIED, coap.Unauthorized)
		rt.respond(coap.Unauthorized, nil)
		return
	}
	rt.setState(STATE_ALLOWED, 0)

	ch, ok := rt.r.devices.Lookup(rt.target)
	if !ok {
		rt.setState(STATE_TARGET_UNREACHABLE, coap.NotFound)
		rt.respond(coap.NotFound, nil)
		return
	}

	freq := rt.req.Clone()
	freq.Path = rt.rel
	freq.Token = forwardToken(rt.src, rt.req.Token)
	rt.fwdToken = freq.Token

	if rt.req.Observe == cxcoap.OBSERVE_UNSUBSCRIBE {
		rt.r.untrack(rt.src.Id(), freq.Token, nil)
	}

	linkList := false
	for _, v := range rt.req.QueryValues("if") {
		if v == IF_LINK_LIST {
			linkList = true
		}
	}

	fn := rt.onDefaultRsp
	if linkList {
		fn = rt.onLinkListRsp
	}

	rt.setState(STATE_FORWARDING, 0)
	if rt.req.Observe == cxcoap.OBSERVE_SUBSCRIBE {
		rt.r.track(rt, freq, ch)
	}
	if err := ch.TxReq(freq, fn); err != nil {
		rt.fail(err)
	}
}

func (rt *routing) rewrite(rsp *cxcoap.Msg) *cxcoap.Msg {
	out := rsp.Clone()
	out.Token = append([]byte(nil), rt.req.Token...)

	rel := rsp.Path
	if rel == "" {
		rel = rt.rel
	}
	out.Path = rt.r.routedPath(rt.target, rel)
	return out
}

func (rt *routing) onDefaultRsp(rsp *cxcoap.Msg) {
	defer rt.catch()

	rt.deliver(rt.rewrite(rsp))
}

func (rt *routing) rewriteLinks(payload []byte) ([]byte, error) {
	var links []interface{}
	if err := cxutil.DecodeCbor(payload, &links); err != nil {
		return nil, err
	}

	for i, l := range links {
		m, ok := l.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("link %d is not a map", i)
		}

		raw, ok := m["href"]
		if !ok {
			continue
		}

		href, err := cast.ToStringE(raw)
		if err != nil {
			return nil, fmt.Errorf("link %d has a malformed href", i)
		}
		m["href"] = rt.r.routedPath(rt.target, href)
	}

	return cxutil.EncodeCbor(links)
}

func (rt *routing) onLinkListRsp(rsp *cxcoap.Msg) {
	defer rt.catch()

	out := rt.rewrite(rsp)
	if rsp.IsSuccess() && len(rsp.Payload) > 0 {
		b, err := rt.rewriteLinks(rsp.Payload)
		if err != nil {
			rt.fail(fmt.Errorf("bad link list from %s: %s",
				rt.target, err.Error()))
			return
		}
		out.Payload = b
	}

	rt.deliver(out)
}
