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

package sesntest

import (
	"fmt"
	"sync"
	"time"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
)

// A peer that records every response sent to it.
type Peer struct {
	Name   string
	Device string
	User   string

	// When set, TxRsp fails with this error.
	TxErr error

	mtx  sync.Mutex
	rsps []*cxcoap.Msg
	ch   chan *cxcoap.Msg
}

func NewPeer(name string) *Peer {
	return &Peer{
		Name: name,
		ch:   make(chan *cxcoap.Msg, 256),
	}
}

func (p *Peer) Id() string {
	return p.Name
}

func (p *Peer) DeviceId() string {
	return p.Device
}

func (p *Peer) UserId() string {
	return p.User
}

func (p *Peer) TxRsp(rsp *cxcoap.Msg) error {
	if p.TxErr != nil {
		return p.TxErr
	}

	p.mtx.Lock()
	p.rsps = append(p.rsps, rsp)
	p.mtx.Unlock()

	p.ch <- rsp
	return nil
}

func (p *Peer) Rsps() []*cxcoap.Msg {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return append([]*cxcoap.Msg(nil), p.rsps...)
}

func (p *Peer) NumRsps() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return len(p.rsps)
}

// Waits for the next response.
func (p *Peer) Recv() (*cxcoap.Msg, error) {
	select {
	case m := <-p.ch:
		return m, nil
	case <-time.After(DFLT_TIMEOUT):
		return nil, fmt.Errorf("timeout waiting for response")
	}
}
