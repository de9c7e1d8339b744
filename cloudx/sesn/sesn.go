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

// Delivers responses and notifications back to whoever sent a request.
type Sink interface {
	TxRsp(rsp *cxcoap.Msg) error
}

// The party a request came from.
type Peer interface {
	Sink

	// Unique per connection.
	Id() string

	// Empty until the peer signs in.
	DeviceId() string
	UserId() string
}

// Carries requests to some remote party and routes its responses back.  The
// response function may run more than once for an observe request.
type ReqChannel interface {
	TxReq(req *cxcoap.Msg, fn tokmux.RspFn) error
}

// Resolves a device id to the channel of its live connection.
type DeviceRegistry interface {
	Lookup(deviceId string) (ReqChannel, bool)
}

// Handles a request on behalf of the server; responds through src.
type ReqHandler func(src Peer, req *cxcoap.Msg)

type Handler interface {
	OnRequest(s *Sesn, req *cxcoap.Msg)
	OnDisconnect(s *Sesn)
}
