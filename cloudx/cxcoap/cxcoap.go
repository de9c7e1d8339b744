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

package cxcoap

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/runtimeco/go-coap"

	"mynewt.apache.org/newtcloud/cloudx/cxutil"
)

const MAX_TOKEN_LEN = 8

type ObserveMode int

const (
	OBSERVE_NONE ObserveMode = iota
	OBSERVE_SUBSCRIBE
	OBSERVE_UNSUBSCRIBE
)

var observeModeNameMap = map[ObserveMode]string{
	OBSERVE_NONE:        "none",
	OBSERVE_SUBSCRIBE:   "subscribe",
	OBSERVE_UNSUBSCRIBE: "unsubscribe",
}

func (om ObserveMode) String() string {
	return observeModeNameMap[om]
}

// Msg is an immutable-by-convention snapshot of one CoAP request or response.
// Components that need to change a field work on a Clone().
type Msg struct {
	Code    coap.COAPCode
	Token   []byte
	Path    string
	Query   []string
	Observe ObserveMode
	Payload []byte

	// Observe option of a response; nonzero marks a notification.
	ObsSeq uint32
}

func (m *Msg) Clone() *Msg {
	c := *m
	c.Token = append([]byte(nil), m.Token...)
	c.Query = append([]string(nil), m.Query...)
	c.Payload = append([]byte(nil), m.Payload...)
	return &c
}

func (m *Msg) IsRequest() bool {
	return m.Code >= coap.GET && m.Code <= coap.DELETE
}

func (m *Msg) IsSuccess() bool {
	return m.Code >= coap.Created && m.Code < coap.BadRequest
}

func (m *Msg) Method() string {
	switch m.Code {
	case coap.GET:
		return "get"
	case coap.POST:
		return "post"
	case coap.PUT:
		return "put"
	case coap.DELETE:
		return "delete"
	default:
		return ""
	}
}

// Returns the value of the first option carrying the named parameter,
// verbatim.  Empty values are reported as absent.
func (m *Msg) QueryValue(key string) (string, bool) {
	for _, q := range m.Query {
		kv := strings.SplitN(q, "=", 2)
		if len(kv) == 2 && kv[0] == key && kv[1] != "" {
			return kv[1], true
		}
	}
	return "", false
}

// Values of a query parameter; "a=1;2" and repeated "a=" options are both
// accepted.
func (m *Msg) QueryValues(key string) []string {
	var vals []string
	for _, q := range m.Query {
		kv := strings.SplitN(q, "=", 2)
		if len(kv) != 2 || kv[0] != key {
			continue
		}
		for _, v := range strings.Split(kv[1], ";") {
			if v != "" {
				vals = append(vals, v)
			}
		}
	}

	return vals
}

func (m *Msg) Uri() string {
	if len(m.Query) == 0 {
		return m.Path
	}
	return m.Path + "?" + strings.Join(m.Query, "&")
}

func (m *Msg) String() string {
	return fmt.Sprintf("code=%s token=%x uri=%s observe=%s len=%d",
		m.Code.String(), m.Token, m.Uri(), m.Observe.String(),
		len(m.Payload))
}

// Splits a path into its non-empty segments.
func Segments(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

type Token struct {
	Len  int
	Data [MAX_TOKEN_LEN]byte
}

func NewToken(rawToken []byte) (Token, error) {
	ot := Token{}

	if len(rawToken) == 0 {
		return ot, cxutil.NewInvalidTokenError("Invalid CoAP token: empty")
	}

	if len(rawToken) > MAX_TOKEN_LEN {
		return ot, cxutil.NewInvalidTokenError(fmt.Sprintf(
			"Invalid CoAP token: too long (%d bytes)", len(rawToken)))
	}

	ot.Len = len(rawToken)
	copy(ot.Data[:], rawToken)

	return ot, nil
}

func (t Token) Bytes() []byte {
	return append([]byte(nil), t.Data[:t.Len]...)
}

func (t Token) Equal(raw []byte) bool {
	return bytes.Equal(t.Data[:t.Len], raw)
}

func NewRandToken() []byte {
	b := make([]byte, MAX_TOKEN_LEN)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("token generation failed: %s", err.Error()))
	}
	return b
}

func buildReq(code coap.COAPCode, resUri string, token []byte,
	val []byte) *Msg {

	m := &Msg{
		Code:    code,
		Token:   token,
		Payload: val,
	}

	q := strings.SplitN(resUri, "?", 2)
	m.Path = q[0]
	if len(q) > 1 && q[1] != "" {
		m.Query = strings.Split(q[1], "&")
	}

	return m
}

func CreateGet(resUri string, observe ObserveMode, token []byte) *Msg {
	m := buildReq(coap.GET, resUri, token, nil)
	m.Observe = observe
	return m
}

func CreatePut(resUri string, token []byte, val []byte) *Msg {
	return buildReq(coap.PUT, resUri, token, val)
}

func CreatePost(resUri string, token []byte, val []byte) *Msg {
	return buildReq(coap.POST, resUri, token, val)
}

func CreateDelete(resUri string, token []byte, val []byte) *Msg {
	return buildReq(coap.DELETE, resUri, token, val)
}

// Builds a response to req.  The response echoes the request's token and
// advertises the request's path.
func CreateRsp(req *Msg, code coap.COAPCode, payload []byte) *Msg {
	return &Msg{
		Code:    code,
		Token:   append([]byte(nil), req.Token...),
		Path:    req.Path,
		Payload: payload,
	}
}
