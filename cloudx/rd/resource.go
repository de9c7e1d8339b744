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

package rd

import (
	"github.com/runtimeco/go-coap"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/presence"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
)

func (d *Directory) rdGet(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	di, ok := req.QueryValue("di")
	if !ok {
		return coap.Content, map[string]interface{}{
			"devices": d.DeviceIds(),
		}, nil
	}

	return coap.Content, map[string]interface{}{
		"di":    di,
		"links": linksToList(d.Links(di)),
	}, nil
}

func (d *Directory) rdPost(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	di, links, err := ParsePublish(val)
	if err != nil {
		return 0, nil, err
	}

	if bound := src.DeviceId(); bound != "" && bound != di {
		return 0, nil, cxutil.FmtBadRequestError(
			"connection of %s cannot publish for %s", bound, di)
	}

	d.Publish(di, links)

	return coap.Changed, map[string]interface{}{
		"di":    di,
		"links": linksToList(d.Links(di)),
	}, nil
}

func (d *Directory) rdDelete(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	di, ok := req.QueryValue("di")
	if !ok {
		return 0, nil, cxutil.NewBadRequestError("missing query \"di\"")
	}

	evs := d.Unpublish(di, req.QueryValues("href"))
	if len(evs) == 0 {
		return 0, nil, cxutil.FmtNotFoundError("nothing published by %s", di)
	}

	return coap.Deleted, nil, nil
}

// /oic/rd: GET lists, POST publishes, DELETE unpublishes.
func (d *Directory) Resource() oic.Resource {
	return oic.NewCborResource(RES_RD_URI, d.rdGet, d.rdPost, nil, d.rdDelete)
}

func (d *Directory) adGet(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	dis := req.QueryValues("di")
	if len(dis) == 0 {
		return 0, nil, cxutil.NewBadRequestError("missing query \"di\"")
	}

	reqId := oic.RequestId(src, req)
	switch req.Observe {
	case cxcoap.OBSERVE_SUBSCRIBE:
		fn := oic.NotifyFn(src, req)
		for _, di := range dis {
			d.prs.SubscribeResources(src.Id(), reqId, di, fn)
		}

	case cxcoap.OBSERVE_UNSUBSCRIBE:
		for _, di := range dis {
			d.prs.UnsubscribeResources(reqId, di)
		}
	}

	var links []Link
	for _, di := range dis {
		links = append(links, d.Links(di)...)
	}

	return coap.Content, map[string]interface{}{
		"links": linksToList(links),
	}, nil
}

// /oic/ad?di=<id>[;<id>...]: resource presence, observable.  The response
// lists the links currently published by the devices.
func (d *Directory) PresenceResource() oic.Resource {
	return oic.NewCborResource(presence.RES_RES_PRESENCE_URI,
		d.adGet, nil, nil, nil)
}
