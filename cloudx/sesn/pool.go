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
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Live sessions, indexed by session id and by signed-in device id.
type Pool struct {
	mtx   sync.Mutex
	sesns map[string]*Sesn
	devs  map[string]*Sesn
}

func NewPool() *Pool {
	return &Pool{
		sesns: map[string]*Sesn{},
		devs:  map[string]*Sesn{},
	}
}

func (p *Pool) Add(s *Sesn) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.sesns[s.Id()] = s
}

// Drops a session and any device registration pointing at it.  Returns the
// device ids that were unregistered.
func (p *Pool) Remove(s *Sesn) []string {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	delete(p.sesns, s.Id())

	var dis []string
	for di, cur := range p.devs {
		if cur == s {
			delete(p.devs, di)
			dis = append(dis, di)
		}
	}

	sort.Strings(dis)
	return dis
}

// Makes s the channel for deviceId.  A device that reconnects replaces its
// stale registration.
func (p *Pool) Register(deviceId string, s *Sesn) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if prev := p.devs[deviceId]; prev != nil && prev != s {
		log.Infof("device %s moved from session %s to %s",
			deviceId, prev.Id(), s.Id())
	}

	p.devs[deviceId] = s
}

// Removes the registration only if it still belongs to s.
func (p *Pool) Unregister(deviceId string, s *Sesn) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.devs[deviceId] != s {
		return false
	}

	delete(p.devs, deviceId)
	return true
}

func (p *Pool) Sesn(deviceId string) (*Sesn, bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	s, ok := p.devs[deviceId]
	return s, ok
}

func (p *Pool) Lookup(deviceId string) (ReqChannel, bool) {
	s, ok := p.Sesn(deviceId)
	if !ok {
		return nil, false
	}
	return s, true
}

func (p *Pool) NumSesns() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return len(p.sesns)
}

func (p *Pool) DeviceIds() []string {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	dis := make([]string, 0, len(p.devs))
	for di := range p.devs {
		dis = append(dis, di)
	}

	sort.Strings(dis)
	return dis
}
