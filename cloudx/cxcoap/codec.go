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
	"fmt"
	"strings"

	"github.com/runtimeco/go-coap"
	"github.com/spf13/cast"

	"mynewt.apache.org/newtcloud/cloudx/cxutil"
)

// Observe values are 24-bit on the wire.
const OBS_SEQ_MASK = 0xffffff

// Frames beyond this size are rejected by the reassembler.
const MAX_FRAME_LEN = 1 << 20

// Converts a snapshot into a CoAP-over-TCP message.
func ToCoap(m *Msg) coap.Message {
	p := coap.MessageParams{
		Type:    coap.Confirmable,
		Code:    m.Code,
		Token:   m.Token,
		Payload: m.Payload,
	}

	cm := coap.NewTcpMessage(p)
	if m.Path != "" {
		cm.SetPathString(strings.TrimPrefix(m.Path, "/"))
	}
	for _, q := range m.Query {
		cm.AddOption(coap.URIQuery, q)
	}

	if m.IsRequest() {
		switch m.Observe {
		case OBSERVE_SUBSCRIBE:
			cm.SetObserve(0)
		case OBSERVE_UNSUBSCRIBE:
			cm.SetObserve(1)
		}
	} else if m.ObsSeq != 0 {
		cm.SetObserve(int(m.ObsSeq & OBS_SEQ_MASK))
	}

	return cm
}

func FromCoap(cm coap.Message) *Msg {
	m := &Msg{
		Code:    cm.Code(),
		Token:   append([]byte(nil), cm.Token()...),
		Payload: append([]byte(nil), cm.Payload()...),
	}

	if path := cm.PathString(); path != "" {
		m.Path = "/" + strings.TrimPrefix(path, "/")
	}

	for _, q := range cm.Options(coap.URIQuery) {
		if s, err := cast.ToStringE(q); err == nil {
			m.Query = append(m.Query, s)
		}
	}

	if ov := cm.Option(coap.Observe); ov != nil {
		if m.IsRequest() {
			switch cast.ToInt(ov) {
			case 0:
				m.Observe = OBSERVE_SUBSCRIBE
			case 1:
				m.Observe = OBSERVE_UNSUBSCRIBE
			}
		} else {
			m.ObsSeq = cast.ToUint32(ov)
		}
	}

	return m
}

func Encode(m *Msg) ([]byte, error) {
	b, err := ToCoap(m).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("Failed to encode CoAP: %s", err.Error())
	}

	return b, nil
}

// Reassembles CoAP-over-TCP messages from a byte stream.  A single read may
// carry a partial message or several complete ones.
type Reassembler struct {
	// Largest frame accepted; a longer pending frame fails the stream.
	MaxLen int

	cur []byte
}

func NewReassembler() *Reassembler {
	return &Reassembler{
		MaxLen: MAX_FRAME_LEN,
	}
}

// Returns the messages completed by frag.  An error means the stream can no
// longer be framed and the connection must be dropped; messages completed
// before the bad frame are still returned.
func (r *Reassembler) RxFrag(frag []byte) ([]*Msg, error) {
	r.cur = append(r.cur, frag...)

	var msgs []*Msg
	for len(r.cur) > 0 {
		var tm *coap.TcpMessage
		var err error

		tm, r.cur, err = coap.PullTcp(r.cur)
		if err != nil {
			r.cur = nil
			return msgs, cxutil.NewXportError(
				fmt.Sprintf("invalid CoAP-TCP frame: %s", err.Error()))
		}

		if tm == nil {
			break
		}

		msgs = append(msgs, FromCoap(tm))
	}

	if len(r.cur) > r.MaxLen {
		n := len(r.cur)
		r.cur = nil
		return msgs, cxutil.NewXportError(
			fmt.Sprintf("CoAP-TCP frame too long; pending=%d max=%d",
				n, r.MaxLen))
	}

	return msgs, nil
}
