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
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const WS_PATH = "/.well-known/coap"

// Presents a websocket as a byte stream.  Each write is one binary message.
type WsConn struct {
	*websocket.Conn

	r   io.Reader
	rio sync.Mutex
	wio sync.Mutex
}

func NewWsConn(ws *websocket.Conn) *WsConn {
	return &WsConn{
		Conn: ws,
	}
}

func (c *WsConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *WsConn) Write(p []byte) (int, error) {
	c.wio.Lock()
	defer c.wio.Unlock()

	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *WsConn) Read(p []byte) (int, error) {
	c.rio.Lock()
	defer c.rio.Unlock()

	for {
		if c.r == nil {
			var err error
			_, c.r, err = c.NextReader()
			if err != nil {
				return 0, err
			}
		}

		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

type WsServerCfg struct {
	Addr      string
	TLSConfig *tls.Config
}

type WsServer struct {
	cfg      WsServerCfg
	fn       ConnFn
	upgrader websocket.Upgrader
}

func NewWsServer(cfg WsServerCfg, fn ConnFn) *WsServer {
	return &WsServer{
		cfg: cfg,
		fn:  fn,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"coap"},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
	}
}

func (s *WsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("websocket upgrade from %s failed: %s",
			r.RemoteAddr, err.Error())
		return
	}

	conn := NewWsConn(ws)
	defer conn.Close()

	s.fn(conn, TRANSPORT_WS)
}

func (s *WsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(WS_PATH, s)
	return mux
}

// Serves websocket clients until ctx is done.
func (s *WsServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:      s.cfg.Addr,
		Handler:   s.Handler(),
		TLSConfig: s.cfg.TLSConfig,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening for CoAP-over-WebSocket on %s", s.cfg.Addr)
		if s.cfg.TLSConfig != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)

	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.Wrapf(err, "websocket server on %s failed", s.cfg.Addr)
	}
}

// Connects to a CoAP-over-WebSocket server.
func DialWs(ctx context.Context, url string) (net.Conn, error) {
	d := websocket.Dialer{
		Subprotocols:     []string{"coap"},
		HandshakeTimeout: 10 * time.Second,
	}

	ws, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", url)
	}

	return NewWsConn(ws), nil
}
