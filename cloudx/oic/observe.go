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
	"sync/atomic"

	"github.com/runtimeco/go-coap"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/subreg"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
)

// Identifies an observe request across its subscribe and unsubscribe.
func RequestId(src sesn.Peer, req *cxcoap.Msg) string {
	return fmt.Sprintf("%s:%x", src.Id(), req.Token)
}

// Observe value of the response that accepts a subscription.  Notifications
// continue from there.
const OBS_SEQ_FIRST = 1

// Builds a delivery function that pushes notifications for an observe
// request back to its sender.  Each notification carries the next observe
// sequence number.
func NotifyFn(src sesn.Peer, req *cxcoap.Msg) subreg.DeliverFn {
	obs := req.Clone()
	seq := uint32(OBS_SEQ_FIRST)
	return func(payload []byte) error {
		rsp := cxcoap.CreateRsp(obs, coap.Content, payload)
		rsp.ObsSeq = atomic.AddUint32(&seq, 1)
		return src.TxRsp(rsp)
	}
}
