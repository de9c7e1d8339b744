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

package presence

import (
	"context"
	"time"

	"github.com/runtimeco/go-coap"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
)

// Bounds each store access made while serving a request.
const DFLT_REQ_TIMEOUT = 5 * time.Second

func (n *Notifier) devPresenceGet(src sesn.Peer, req *cxcoap.Msg) {
	dis := req.QueryValues("di")
	if len(dis) == 0 {
		oic.RespondErr(src, req,
			cxutil.NewBadRequestError("missing query \"di\""))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DFLT_REQ_TIMEOUT)
	defer cancel()

	var payload []byte
	var err error

	switch req.Observe {
	case cxcoap.OBSERVE_SUBSCRIBE:
		payload, err = n.SubscribeDevices(ctx, src.Id(),
			oic.RequestId(src, req), dis, oic.NotifyFn(src, req))

	case cxcoap.OBSERVE_UNSUBSCRIBE:
		n.UnsubscribeDevices(oic.RequestId(src, req), dis)
		payload, err = n.DevicePresence(ctx, dis)

	default:
		payload, err = n.DevicePresence(ctx, dis)
	}

	if err != nil {
		oic.RespondErr(src, req, err)
		return
	}

	oic.Respond(src, req, coap.Content, payload)
}

// /oic/prs?di=<id>[;<id>...]; observable.
func (n *Notifier) DeviceResource() oic.Resource {
	return oic.Resource{
		Uri:   RES_DEV_PRESENCE_URI,
		GetCb: n.devPresenceGet,
	}
}
