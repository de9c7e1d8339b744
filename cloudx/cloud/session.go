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

package cloud

import (
	"context"

	"github.com/runtimeco/go-coap"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/presence"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
)

const (
	RES_SESSION_URI = "/oic/account/session"
	RES_DEVICE_URI  = "/oic/d"

	DEVICE_NAME = "newtcloud"
	DEVICE_TYPE = "oic.wk.d"
)

type signIn struct {
	DeviceId string
	UserId   string
	Login    bool
}

func parseSignIn(val map[string]interface{}) (signIn, error) {
	si := signIn{
		DeviceId: cast.ToString(val["di"]),
		UserId:   cast.ToString(val["uid"]),
	}

	raw, ok := val["login"]
	if !ok {
		return si, cxutil.NewBadRequestError("missing \"login\"")
	}

	login, err := cast.ToBoolE(raw)
	if err != nil {
		return si, cxutil.FmtBadRequestError("malformed login: %v", raw)
	}
	si.Login = login

	if si.DeviceId == "" {
		return si, cxutil.NewBadRequestError("missing \"di\"")
	}

	return si, nil
}

func (s *System) sessionPost(src sesn.Peer, req *cxcoap.Msg,
	val map[string]interface{}) (coap.COAPCode, map[string]interface{}, error) {

	ss, ok := src.(*sesn.Sesn)
	if !ok {
		return 0, nil, cxutil.NewBadRequestError(
			"sign-in requires a connection")
	}

	si, err := parseSignIn(val)
	if err != nil {
		return 0, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.Cfg.OpTimeout)
	defer cancel()

	if !si.Login {
		if ss.DeviceId() != si.DeviceId {
			return 0, nil, cxutil.FmtBadRequestError(
				"%s is not signed in on this connection", si.DeviceId)
		}

		if s.Pool.Unregister(si.DeviceId, ss) {
			s.setDeviceState(ctx, si.DeviceId, presence.DEV_STATE_OFF)
		}
		ss.SetIdentity("", "")
		s.Metrics.SetDevicesOnline(len(s.Pool.DeviceIds()))

		log.Infof("[%s] %s signed out", ss.Id(), si.DeviceId)
		return coap.Changed, nil, nil
	}

	ss.SetIdentity(si.DeviceId, si.UserId)
	s.Pool.Register(si.DeviceId, ss)
	if si.UserId != "" {
		s.Acl.Create(si.DeviceId, si.UserId)
	}
	s.setDeviceState(ctx, si.DeviceId, presence.DEV_STATE_ON)
	s.Metrics.SetDevicesOnline(len(s.Pool.DeviceIds()))

	log.Infof("[%s] %s signed in as %s", ss.Id(), si.DeviceId, si.UserId)

	return coap.Changed, map[string]interface{}{
		"di":        si.DeviceId,
		"uid":       si.UserId,
		"expiresin": -1,
	}, nil
}

// /oic/account/session: POST {di, uid, login} signs a connection in or out.
func (s *System) sessionResource() oic.Resource {
	return oic.NewCborResource(RES_SESSION_URI, nil, s.sessionPost, nil, nil)
}

func (s *System) deviceResource() oic.Resource {
	return oic.NewFixedResource(RES_DEVICE_URI, map[string]interface{}{
		"n":  DEVICE_NAME,
		"rt": []string{DEVICE_TYPE},
	})
}
