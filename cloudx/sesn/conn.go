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
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/runtimeco/go-coap"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/tokmux"
)

const MAX_PACKET_SIZE = 2048

// One connected client: a device, an app or an upstream server.
type Sesn struct {
	id   string
	conn net.Conn
	mux  *tokmux.Multiplexer
	rsm  *cxcoap.Reassembler

	txMtx sync.Mutex

	mtx      sync.Mutex
	deviceId string
	userId   string
	isOpen   bool
}

func NewSesn(conn net.Conn) *Sesn {
	s := &Sesn{
		id:     uuid.NewString(),
		conn:   conn,
		rsm:    cxcoap.NewReassembler(),
		isOpen: true,
	}

	s.mux = tokmux.New(s.tx)
	s.mux.Name = s.id

	return s
}

func (s *Sesn) Id() string {
	return s.id
}

func (s *Sesn) DeviceId() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.deviceId
}

func (s *Sesn) UserId() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.userId
}

// Associates the connection with a signed-in device and user.  Empty strings
// clear the association.
func (s *Sesn) SetIdentity(deviceId string, userId string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.deviceId = deviceId
	s.userId = userId
}

func (s *Sesn) RemoteAddr() string {
	if a := s.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

func (s *Sesn) Mux() *tokmux.Multiplexer {
	return s.mux
}

func (s *Sesn) IsOpen() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.isOpen
}

func (s *Sesn) tx(m *cxcoap.Msg) error {
	if !s.IsOpen() {
		return cxutil.NewSesnClosedError(
			"Attempt to transmit over closed session")
	}

	b, err := cxcoap.Encode(m)
	if err != nil {
		return err
	}

	cxutil.LogTx(s.id, b)

	s.txMtx.Lock()
	defer s.txMtx.Unlock()

	if _, err := s.conn.Write(b); err != nil {
		return cxutil.NewXportError(err.Error())
	}

	return nil
}

func (s *Sesn) TxRsp(rsp *cxcoap.Msg) error {
	return s.tx(rsp)
}

// Sends a request to the peer.  The request's token is swapped for one that
// is unique on this connection; fn sees the original token again.
func (s *Sesn) TxReq(req *cxcoap.Msg, fn tokmux.RspFn) error {
	return s.mux.SendRequest(req, fn)
}

func (s *Sesn) Close() error {
	s.mtx.Lock()
	if !s.isOpen {
		s.mtx.Unlock()
		return cxutil.NewSesnClosedError(
			"Attempt to close an unopened session")
	}
	s.isOpen = false
	s.mtx.Unlock()

	err := s.conn.Close()
	s.mux.Close(coap.ServiceUnavailable)
	return err
}

func (s *Sesn) dispatch(h Handler, m *cxcoap.Msg) {
	if !m.IsRequest() {
		if err := s.mux.OnResponse(m); err != nil {
			log.Debugf("[%s] %s", s.id, err.Error())
		}
		return
	}

	h.OnRequest(s, m)
}

// Reads and dispatches messages until the connection fails.  Requests are
// handled inline, one at a time.  On return the session is closed and the
// handler has been told.
func (s *Sesn) Serve(h Handler) error {
	b := make([]byte, MAX_PACKET_SIZE)

	var rerr error
	for {
		n, err := s.conn.Read(b)
		if n > 0 {
			cxutil.LogRx(s.id, b[:n])
			msgs, ferr := s.rsm.RxFrag(b[:n])
			for _, m := range msgs {
				s.dispatch(h, m)
			}
			if ferr != nil {
				log.Infof("[%s] dropping connection from %s: %s",
					s.id, s.RemoteAddr(), ferr.Error())
				rerr = ferr
				break
			}
		}

		if err != nil {
			if err != io.EOF {
				rerr = err
			}
			break
		}
	}

	log.Debugf("[%s] connection from %s closed", s.id, s.RemoteAddr())

	s.Close()
	h.OnDisconnect(s)

	return rerr
}
