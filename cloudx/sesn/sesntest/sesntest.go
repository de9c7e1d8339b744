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

// Package sesntest connects in-memory clients to server sessions.
package sesntest

import (
	"fmt"
	"net"
	"time"

	"mynewt.apache.org/newtcloud/cloudx/cxcoap"
	"mynewt.apache.org/newtcloud/cloudx/sesn"
)

const DFLT_TIMEOUT = 2 * time.Second

// The remote end of a session: a fake device or app.
type Client struct {
	conn net.Conn
	rxCh chan *cxcoap.Msg
}

func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn: conn,
		rxCh: make(chan *cxcoap.Msg, 64),
	}

	go c.rxLoop()
	return c
}

func (c *Client) rxLoop() {
	defer close(c.rxCh)

	rsm := cxcoap.NewReassembler()
	b := make([]byte, sesn.MAX_PACKET_SIZE)
	for {
		n, err := c.conn.Read(b)
		if n > 0 {
			msgs, ferr := rsm.RxFrag(b[:n])
			for _, m := range msgs {
				c.rxCh <- m
			}
			if ferr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) Send(m *cxcoap.Msg) error {
	b, err := cxcoap.Encode(m)
	if err != nil {
		return err
	}

	_, err = c.conn.Write(b)
	return err
}

// Waits for the next message from the server.
func (c *Client) Recv() (*cxcoap.Msg, error) {
	select {
	case m, ok := <-c.rxCh:
		if !ok {
			return nil, fmt.Errorf("connection closed")
		}
		return m, nil
	case <-time.After(DFLT_TIMEOUT):
		return nil, fmt.Errorf("timeout waiting for message")
	}
}

// Reports whether a message arrives within d.
func (c *Client) Idle(d time.Duration) bool {
	select {
	case _, ok := <-c.rxCh:
		return !ok
	case <-time.After(d):
		return true
	}
}

// Sends req and waits for the next message.
func (c *Client) Do(req *cxcoap.Msg) (*cxcoap.Msg, error) {
	if err := c.Send(req); err != nil {
		return nil, err
	}
	return c.Recv()
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Creates a server session wired to a client over an in-memory pipe.  The
// session is served with h in the background.
func NewPair(h sesn.Handler) (*sesn.Sesn, *Client) {
	srv, cli := net.Pipe()

	s := sesn.NewSesn(srv)
	go s.Serve(h)

	return s, NewClient(cli)
}
