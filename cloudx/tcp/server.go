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

package tcp

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

const (
	TRANSPORT_TCP = "tcp"
	TRANSPORT_WS  = "ws"

	DFLT_POOL_SIZE = 1024
)

// Runs for the lifetime of one accepted connection.
type ConnFn func(conn net.Conn, transport string)

type ServerCfg struct {
	Addr string

	// Optional; enables TLS on the listener.
	TLSConfig *tls.Config

	// Maximum simultaneous connections; 0 means no limit beyond the pool.
	MaxConns int

	// Number of connection workers.
	PoolSize int
}

type Server struct {
	cfg  ServerCfg
	fn   ConnFn
	pool *ants.Pool

	mtx sync.Mutex
	ln  net.Listener
}

func NewServer(cfg ServerCfg, fn ConnFn) (*Server, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DFLT_POOL_SIZE
	}

	pool, err := ants.NewPool(cfg.PoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create connection pool")
	}

	return &Server{
		cfg:  cfg,
		fn:   fn,
		pool: pool,
	}, nil
}

func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.cfg.Addr)
	}

	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}

	if s.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, s.cfg.TLSConfig)
	}

	s.mtx.Lock()
	s.ln = ln
	s.mtx.Unlock()

	log.Infof("listening for CoAP-over-TCP on %s (tls=%v)",
		ln.Addr().String(), s.cfg.TLSConfig != nil)
	return nil
}

// Listening address; nil before Listen().
func (s *Server) Addr() net.Addr {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) handle(conn net.Conn) {
	err := s.pool.Submit(func() {
		defer conn.Close()
		s.fn(conn, TRANSPORT_TCP)
	})

	if err != nil {
		log.Infof("rejecting connection from %s: %s",
			conn.RemoteAddr().String(), err.Error())
		conn.Close()
	}
}

// Accepts connections until ctx is done.  Listen() is called first if it
// has not been.
func (s *Server) Serve(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.mtx.Lock()
	ln := s.ln
	s.mtx.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer s.pool.Release()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Infof("listener on %s closed", ln.Addr().String())
				return nil
			default:
			}

			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return errors.Wrap(err, "accept failed")
		}

		log.Debugf("accepted connection from %s", conn.RemoteAddr().String())
		s.handle(conn)
	}
}

func (s *Server) Running() int {
	return s.pool.Running()
}

// Connects to a CoAP-over-TCP server, with TLS if tlsCfg is non-nil.
func Dial(ctx context.Context, addr string,
	tlsCfg *tls.Config) (net.Conn, error) {

	var conn net.Conn
	var err error

	if tlsCfg != nil {
		d := &tls.Dialer{Config: tlsCfg}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		d := &net.Dialer{}
		conn, err = d.DialContext(ctx, "tcp", addr)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", addr)
	}

	return conn, nil
}
