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

// Package presence tracks device and resource liveness and pushes presence
// payloads to observers.
package presence

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"

	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/subreg"
)

const (
	RES_DEV_PRESENCE_URI = "/oic/prs"
	RES_RES_PRESENCE_URI = "/oic/ad"
)

type DevState int

const (
	DEV_STATE_OFF DevState = iota
	DEV_STATE_ON
)

var devStateNameMap = map[DevState]string{
	DEV_STATE_OFF: "off",
	DEV_STATE_ON:  "on",
}

func (s DevState) String() string {
	return devStateNameMap[s]
}

func ParseDevState(s string) (DevState, error) {
	for k, v := range devStateNameMap {
		if s == v {
			return k, nil
		}
	}

	return DEV_STATE_OFF,
		cxutil.FmtBadRequestError("invalid device state: %s", s)
}

type Trigger uint8

const (
	TRIGGER_CREATED Trigger = iota
	TRIGGER_CHANGED
	TRIGGER_DELETED
)

var triggerNameMap = map[Trigger]string{
	TRIGGER_CREATED: "created",
	TRIGGER_CHANGED: "changed",
	TRIGGER_DELETED: "deleted",
}

func (t Trigger) String() string {
	return triggerNameMap[t]
}

// A change to one published resource.
type ResourceEvent struct {
	DeviceId string
	Trigger  Trigger
	Href     string
	Rt       []string
	Ttl      int
}

type devEntry struct {
	DeviceId string `structs:"di" codec:"di"`
	State    string `structs:"state" codec:"state"`
}

type devPayload struct {
	PrsList []devEntry `structs:"prslist" codec:"prslist"`
}

type resPayload struct {
	Seq  uint64    `structs:"non" codec:"non"`
	Ttl  int       `structs:"ttl" codec:"ttl"`
	Trg  codec.Raw `structs:"trg" codec:"trg"`
	Rt   []string  `structs:"rt" codec:"rt"`
	Href string    `structs:"href" codec:"href"`
}

type Notifier struct {
	store   Store
	devSubs *subreg.Registry[string]
	resSubs *subreg.Registry[string]

	// State changes of one device are applied and announced one at a time.
	lockMtx  sync.Mutex
	devLocks map[string]*devLock
}

type devLock struct {
	mtx  sync.Mutex
	refs int
}

func NewNotifier(store Store) *Notifier {
	return &Notifier{
		store:    store,
		devSubs:  subreg.New[string]("device-presence"),
		resSubs:  subreg.New[string]("resource-presence"),
		devLocks: map[string]*devLock{},
	}
}

func (n *Notifier) lockDevice(deviceId string) func() {
	n.lockMtx.Lock()
	l := n.devLocks[deviceId]
	if l == nil {
		l = &devLock{}
		n.devLocks[deviceId] = l
	}
	l.refs++
	n.lockMtx.Unlock()

	l.mtx.Lock()

	return func() {
		l.mtx.Unlock()

		n.lockMtx.Lock()
		l.refs--
		if l.refs == 0 {
			delete(n.devLocks, deviceId)
		}
		n.lockMtx.Unlock()
	}
}

func encodeDevPayload(entries []devEntry) ([]byte, error) {
	return cxutil.EncodeCborMap(cxutil.StructToMap(devPayload{
		PrsList: entries,
	}))
}

func encodeResPayload(seq uint64, ev ResourceEvent) ([]byte, error) {
	trg, err := cxutil.CborRawUint(uint8(ev.Trigger))
	if err != nil {
		return nil, err
	}

	rt := ev.Rt
	if rt == nil {
		rt = []string{}
	}

	return cxutil.EncodeCborMap(cxutil.StructToMap(resPayload{
		Seq:  seq,
		Ttl:  ev.Ttl,
		Trg:  trg,
		Rt:   rt,
		Href: ev.Href,
	}))
}

// Builds a presence list for the given devices.  Unknown devices are
// reported as off.
func (n *Notifier) DevicePresence(ctx context.Context,
	deviceIds []string) ([]byte, error) {

	entries := make([]devEntry, 0, len(deviceIds))
	for _, di := range deviceIds {
		state, _, err := n.store.Get(ctx, di)
		if err != nil {
			return nil, err
		}

		entries = append(entries, devEntry{
			DeviceId: di,
			State:    state.String(),
		})
	}

	return encodeDevPayload(entries)
}

func (n *Notifier) DeviceState(ctx context.Context,
	deviceId string) (DevState, error) {

	state, _, err := n.store.Get(ctx, deviceId)
	return state, err
}

// Registers an observer of the given devices and returns the current
// presence list for the whole set.
func (n *Notifier) SubscribeDevices(ctx context.Context, subscriberId string,
	requestId string, deviceIds []string, fn subreg.DeliverFn) ([]byte, error) {

	if len(deviceIds) == 0 {
		return nil, cxutil.NewBadRequestError("no device ids to observe")
	}

	for _, di := range deviceIds {
		n.devSubs.Subscribe(di, subscriberId, requestId, fn)
	}

	return n.DevicePresence(ctx, deviceIds)
}

func (n *Notifier) UnsubscribeDevices(requestId string, deviceIds []string) {
	for _, di := range deviceIds {
		n.devSubs.Unsubscribe(di, requestId)
	}
}

// Records a device state.  Observers are notified only when the state
// actually changes; a device never seen before counts as off.  Returns the
// number of observers reached.
func (n *Notifier) SetDeviceState(ctx context.Context, deviceId string,
	state DevState) (int, error) {

	unlock := n.lockDevice(deviceId)
	defer unlock()

	prev, _, err := n.store.Get(ctx, deviceId)
	if err != nil {
		return 0, err
	}

	if err := n.store.Upsert(ctx, deviceId, state); err != nil {
		return 0, err
	}

	if prev == state {
		return 0, nil
	}

	log.Infof("device %s is %s", deviceId, state.String())

	return n.devSubs.Notify(deviceId, func() ([]byte, error) {
		return encodeDevPayload([]devEntry{{
			DeviceId: deviceId,
			State:    state.String(),
		}})
	}), nil
}

func (n *Notifier) SubscribeResources(subscriberId string, requestId string,
	deviceId string, fn subreg.DeliverFn) {

	n.resSubs.Subscribe(deviceId, subscriberId, requestId, fn)
}

func (n *Notifier) UnsubscribeResources(requestId string, deviceId string) {
	n.resSubs.Unsubscribe(deviceId, requestId)
}

// Pushes a resource change to every observer of the owning device.  Each
// observer receives its own sequence number.
func (n *Notifier) NotifyResource(ev ResourceEvent) int {
	if ev.Trigger > TRIGGER_DELETED {
		log.Errorf("dropping resource event with invalid trigger: %d",
			ev.Trigger)
		return 0
	}

	return n.resSubs.NotifyEach(ev.DeviceId,
		func(e *subreg.Entry[string]) ([]byte, error) {
			return encodeResPayload(e.Seq(), ev)
		})
}

// Drops every presence subscription held by a disconnected subscriber.
func (n *Notifier) UnsubscribeAll(subscriberId string) int {
	return n.devSubs.UnsubscribeAll(subscriberId) +
		n.resSubs.UnsubscribeAll(subscriberId)
}

func (n *Notifier) NumDeviceObservers(deviceId string) int {
	return n.devSubs.NumSubscribers(deviceId)
}

func (n *Notifier) NumResourceObservers(deviceId string) int {
	return n.resSubs.NumSubscribers(deviceId)
}

func (ev ResourceEvent) String() string {
	return fmt.Sprintf("di=%s trg=%s href=%s", ev.DeviceId,
		ev.Trigger.String(), ev.Href)
}
