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

// Package cloud assembles the interconnection server: sessions, resources,
// managers and listeners.
package cloud

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/runtimeco/go-coap"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"mynewt.apache.org/newtcloud/cloudx/acl"
	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/invite"
	"mynewt.apache.org/newtcloud/cloudx/metrics"
	"mynewt.apache.org/newtcloud/cloudx/oic"
	"mynewt.apache.org/newtcloud/cloudx/presence"
	"mynewt.apache.org/newtcloud/cloudx/rd"
	"mynewt.apache.org/newtcloud/cloudx/route"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
	"mynewt.apache.org/newtcloud/cloudx/tcp"
	"mynewt.apache.org/newtcloud/cloudx/tokmux"
	"mynewt.apache.org/newtcloud/cloudx/topic"
)

const (
	DFLT_ADDR         = ":5683"
	DFLT_OP_TIMEOUT   = 5 * time.Second
	METRICS_PATH      = "/metrics"
	SHUTDOWN_TIMEOUT  = 5 * time.Second
	ACCOUNT_SESN_NAME = "account"

	DFLT_ACCOUNT_REDIAL = 5 * time.Second
)

type Config struct {
	// CoAP-over-TCP listen address.
	Addr string

	// Optional listeners.
	WsAddr      string
	MetricsAddr string

	TLSConfig *tls.Config
	MaxConns  int
	PoolSize  int

	RoutePrefix string

	// When set, verify requests go to this account server instead of the
	// in-process ACL manager.
	AccountAddr string

	// Delay between attempts to reach a lost account server.
	AccountRedial time.Duration

	LegacyPresenceUpgrade bool

	// Bounds presence store accesses.
	OpTimeout time.Duration
}

func NewConfig() Config {
	return Config{
		Addr:                  DFLT_ADDR,
		PoolSize:              tcp.DFLT_POOL_SIZE,
		RoutePrefix:           route.DFLT_PREFIX,
		AccountRedial:         DFLT_ACCOUNT_REDIAL,
		LegacyPresenceUpgrade: true,
		OpTimeout:             DFLT_OP_TIMEOUT,
	}
}

// Channel to the policy service; switches to a remote account server once
// one is connected.
type policyChannel struct {
	mtx   sync.Mutex
	ch    sesn.ReqChannel
	local sesn.ReqChannel
}

func (p *policyChannel) set(ch sesn.ReqChannel) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.ch = ch
}

// Returns to the in-process policy service if ch is the current channel.
func (p *policyChannel) revert(ch sesn.ReqChannel) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.ch != ch {
		return false
	}
	p.ch = p.local
	return true
}

func (p *policyChannel) remote() bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return p.ch != p.local
}

func (p *policyChannel) TxReq(req *cxcoap.Msg, fn tokmux.RspFn) error {
	p.mtx.Lock()
	ch := p.ch
	p.mtx.Unlock()

	return ch.TxReq(req, fn)
}

type System struct {
	Cfg Config

	Pool     *sesn.Pool
	Server   *oic.Server
	Presence *presence.Notifier
	Acl      *acl.Manager
	Invite   *invite.Manager
	Topic    *topic.Manager
	Rd       *rd.Directory
	Router   *route.Router
	Metrics  *metrics.Metrics

	policy *policyChannel
	tcpSrv *tcp.Server
}

// Builds a server around a presence store.  m may be nil.
func NewSystem(cfg Config, store presence.Store,
	m *metrics.Metrics) (*System, error) {

	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DFLT_OP_TIMEOUT
	}

	s := &System{
		Cfg:      cfg,
		Pool:     sesn.NewPool(),
		Server:   oic.NewServer(),
		Presence: presence.NewNotifier(store),
		Acl:      acl.NewManager(),
		Invite:   invite.NewManager(),
		Topic:    topic.NewManager(),
		Metrics:  m,
	}
	s.Rd = rd.NewDirectory(s.Presence)

	local := sesn.NewLocalChannel("policy", s.Server.Handle)
	s.policy = &policyChannel{
		ch:    local,
		local: local,
	}

	s.Router = route.NewRouter(s.policy, s.Pool)
	if cfg.RoutePrefix != "" {
		s.Router.Prefix = cfg.RoutePrefix
	}
	s.Router.StateCb = func(st route.State, code coap.COAPCode) {
		s.Metrics.RouteState(st.String())
		if st == route.STATE_RESPONDED {
			s.Metrics.Routed(code.String())
		}
	}

	s.Acl.NotifyCb = func(cnt int) { s.Metrics.Notified("acl", cnt) }
	s.Topic.NotifyCb = func(cnt int) { s.Metrics.Notified("topic", cnt) }

	s.Server.OnRequest(func(req *cxcoap.Msg) {
		s.Metrics.Request(req.Method())
	})

	resources := []oic.Resource{
		s.Router.Resource(),
		s.sessionResource(),
		s.deviceResource(),
		s.Acl.VerifyResource(route.VERIFY_URI),
		s.Acl.IdResource(),
		s.Presence.DeviceResource(),
		s.Rd.Resource(),
		s.Rd.PresenceResource(),
		s.Invite.Resource(),
		s.Topic.Resource(),
	}
	for _, r := range resources {
		if err := s.Server.AddResource(r); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *System) OnRequest(ss *sesn.Sesn, req *cxcoap.Msg) {
	s.Server.Handle(ss, req)
}

// Cleans up after a dropped connection: its devices go offline and every
// observation it held is cancelled.
func (s *System) OnDisconnect(ss *sesn.Sesn) {
	dis := s.Pool.Remove(ss)

	ctx, cancel := context.WithTimeout(context.Background(), s.Cfg.OpTimeout)
	defer cancel()

	for _, di := range dis {
		s.setDeviceState(ctx, di, presence.DEV_STATE_OFF)
	}

	cnt := s.Presence.UnsubscribeAll(ss.Id()) +
		s.Acl.UnsubscribeAll(ss.Id()) +
		s.Invite.UnsubscribeAll(ss.Id()) +
		s.Topic.UnsubscribeAll(ss.Id())

	relays := s.Router.DropSource(ss.Id())

	s.Metrics.SetDevicesOnline(len(s.Pool.DeviceIds()))

	log.Infof("[%s] disconnected; devices=%v observations=%d relays=%d",
		ss.Id(), dis, cnt, relays)
}

func (s *System) setDeviceState(ctx context.Context, di string,
	state presence.DevState) {

	cnt, err := s.Presence.SetDeviceState(ctx, di, state)
	if err != nil {
		log.Errorf("failed to record presence of %s: %s", di, err.Error())
		return
	}
	s.Metrics.Notified("presence", cnt)
}

// Runs one accepted connection to completion.
func (s *System) ServeConn(conn net.Conn, transport string) {
	ss := sesn.NewSesn(conn)
	ss.Mux().LegacyPresenceUpgrade = s.Cfg.LegacyPresenceUpgrade

	s.Pool.Add(ss)
	s.Metrics.ConnOpened(transport)
	defer s.Metrics.ConnClosed(transport)

	log.Infof("[%s] %s connection from %s", ss.Id(), transport,
		ss.RemoteAddr())

	if err := ss.Serve(s); err != nil {
		log.Debugf("[%s] %s", ss.Id(), err.Error())
	}
}

type accountHandler struct {
	s   *System
	ctx context.Context
}

func (h accountHandler) OnRequest(ss *sesn.Sesn, req *cxcoap.Msg) {
	h.s.Server.Handle(ss, req)
}

func (h accountHandler) OnDisconnect(ss *sesn.Sesn) {
	if !h.s.policy.revert(ss) {
		return
	}

	log.Errorf("lost connection to account server %s; verifying locally "+
		"until it is back", h.s.Cfg.AccountAddr)
	go h.s.redialAccount(h.ctx)
}

// Retries the account server until it answers or ctx ends.
func (s *System) redialAccount(ctx context.Context) {
	interval := s.Cfg.AccountRedial
	if interval <= 0 {
		interval = DFLT_ACCOUNT_REDIAL
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		err := s.ConnectAccount(ctx)
		if err == nil {
			return
		}
		log.Debugf("account server %s still unreachable: %s",
			s.Cfg.AccountAddr, err.Error())
	}
}

// Reports whether verify requests currently go to a remote account server.
func (s *System) AccountConnected() bool {
	return s.policy.remote()
}

// Dials the account server and sends verify requests through it from now
// on.
func (s *System) ConnectAccount(ctx context.Context) error {
	conn, err := tcp.Dial(ctx, s.Cfg.AccountAddr, s.Cfg.TLSConfig)
	if err != nil {
		return err
	}

	ss := sesn.NewSesn(conn)
	s.policy.set(ss)
	go ss.Serve(accountHandler{s: s, ctx: ctx})

	log.Infof("[%s] using account server %s", ss.Id(), s.Cfg.AccountAddr)
	return nil
}

// Binds the CoAP-over-TCP listener.  Optional; Run listens if needed.
func (s *System) Listen() error {
	if s.tcpSrv == nil {
		srv, err := tcp.NewServer(tcp.ServerCfg{
			Addr:      s.Cfg.Addr,
			TLSConfig: s.Cfg.TLSConfig,
			MaxConns:  s.Cfg.MaxConns,
			PoolSize:  s.Cfg.PoolSize,
		}, s.ServeConn)
		if err != nil {
			return err
		}
		s.tcpSrv = srv
	}

	return s.tcpSrv.Listen()
}

// Address of the CoAP-over-TCP listener; nil before Listen.
func (s *System) Addr() net.Addr {
	if s.tcpSrv == nil {
		return nil
	}
	return s.tcpSrv.Addr()
}

func (s *System) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(METRICS_PATH, s.Metrics.Handler())

	srv := &http.Server{
		Addr:    s.Cfg.MetricsAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("serving metrics on %s%s", s.Cfg.MetricsAddr, METRICS_PATH)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(),
			SHUTDOWN_TIMEOUT)
		defer cancel()
		return srv.Shutdown(sctx)

	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.Wrapf(err, "metrics server on %s failed",
			s.Cfg.MetricsAddr)
	}
}

// Serves every configured listener until ctx is done or one of them fails.
func (s *System) Run(ctx context.Context) error {
	if s.Cfg.AccountAddr != "" {
		if err := s.ConnectAccount(ctx); err != nil {
			return err
		}
	}

	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.tcpSrv.Serve(ctx)
	})

	if s.Cfg.WsAddr != "" {
		ws := tcp.NewWsServer(tcp.WsServerCfg{
			Addr:      s.Cfg.WsAddr,
			TLSConfig: s.Cfg.TLSConfig,
		}, s.ServeConn)

		g.Go(func() error {
			return ws.Serve(ctx)
		})
	}

	if s.Cfg.MetricsAddr != "" {
		g.Go(func() error {
			return s.serveMetrics(ctx)
		})
	}

	return g.Wait()
}
