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
	"runtime/debug"

	"github.com/runtimeco/go-coap"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
)

// Called after each request is dispatched.
type ReqHook func(req *cxcoap.Msg)

type Server struct {
	rm     *ResMgr
	reqCbs []ReqHook
}

func NewServer() *Server {
	return &Server{
		rm: NewResMgr(),
	}
}

func (s *Server) AddResource(r Resource) error {
	return s.rm.Add(r)
}

func (s *Server) ResMgr() *ResMgr {
	return s.rm
}

func (s *Server) OnRequest(cb ReqHook) {
	s.reqCbs = append(s.reqCbs, cb)
}

// Resolves and runs the resource for req.  A panicking handler is answered
// with 5.00.
func (s *Server) Handle(src sesn.Peer, req *cxcoap.Msg) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[%s] panic handling %s: %v\n%s",
				src.Id(), req.Uri(), r, debug.Stack())
			Respond(src, req, coap.InternalServerError,
				[]byte(fmt.Sprintf("%v", r)))
		}
	}()

	log.Debugf("[%s] rx request: %s", src.Id(), req.String())

	for _, cb := range s.reqCbs {
		cb(req)
	}

	s.rm.Access(src, req)
}
