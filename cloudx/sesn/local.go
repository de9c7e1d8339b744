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

package sesn

import (
	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/tokmux"
)

// A peer that lives inside the server process.  Responses go straight to a
// callback instead of a connection.
type LocalPeer struct {
	Name   string
	Device string
	User   string

	fn tokmux.RspFn
}

func (p *LocalPeer) Id() string {
	return "local:" + p.Name
}

func (p *LocalPeer) DeviceId() string {
	return p.Device
}

func (p *LocalPeer) UserId() string {
	return p.User
}

func (p *LocalPeer) TxRsp(rsp *cxcoap.Msg) error {
	p.fn(rsp)
	return nil
}

// Delivers requests to an in-process handler.  Used when the account
// service runs in the same process as the interconnection layer.
type LocalChannel struct {
	Name string

	handler ReqHandler
}

func NewLocalChannel(name string, handler ReqHandler) *LocalChannel {
	return &LocalChannel{
		Name:    name,
		handler: handler,
	}
}

func (c *LocalChannel) TxReq(req *cxcoap.Msg, fn tokmux.RspFn) error {
	peer := &LocalPeer{
		Name: c.Name,
		fn:   fn,
	}

	c.handler(peer, req.Clone())
	return nil
}
