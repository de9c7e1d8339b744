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

// Package rd is the resource directory: devices publish the links they
// host, and every change is announced to resource presence observers.
package rd

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/presence"
)

const (
	RES_RD_URI = "/oic/rd"
	DFLT_TTL   = 86400
)

type Link struct {
	DeviceId string   `structs:"di" codec:"di"`
	Href     string   `structs:"href" codec:"href"`
	Rt       []string `structs:"rt" codec:"rt"`
	If       []string `structs:"if" codec:"if"`
	Ttl      int      `structs:"ttl" codec:"ttl"`
}

func (l Link) Map() map[string]interface{} {
	m := cxutil.StructToMap(l)
	if l.Rt == nil {
		m["rt"] = []string{}
	}
	if l.If == nil {
		m["if"] = []string{}
	}
	return m
}

func (l Link) event(trg presence.Trigger) presence.ResourceEvent {
	return presence.ResourceEvent{
		DeviceId: l.DeviceId,
		Trigger:  trg,
		Href:     l.Href,
		Rt:       l.Rt,
		Ttl:      l.Ttl,
	}
}

type Directory struct {
	mtx   sync.Mutex
	links map[string]map[string]Link

	prs *presence.Notifier
}

func NewDirectory(prs *presence.Notifier) *Directory {
	return &Directory{
		links: map[string]map[string]Link{},
		prs:   prs,
	}
}

// Stores links for a device.  A new href is announced as created, a
// republished one as changed.
func (d *Directory) Publish(deviceId string, links []Link) []presence.ResourceEvent {
	d.mtx.Lock()

	m := d.links[deviceId]
	if m == nil {
		m = map[string]Link{}
		d.links[deviceId] = m
	}

	evs := make([]presence.ResourceEvent, 0, len(links))
	for _, l := range links {
		l.DeviceId = deviceId

		trg := presence.TRIGGER_CREATED
		if _, ok := m[l.Href]; ok {
			trg = presence.TRIGGER_CHANGED
		}
		m[l.Href] = l

		evs = append(evs, l.event(trg))
	}

	d.mtx.Unlock()

	d.announce(evs)
	return evs
}

// Removes the named links of a device, or all of them when hrefs is empty.
func (d *Directory) Unpublish(deviceId string, hrefs []string) []presence.ResourceEvent {
	d.mtx.Lock()

	m := d.links[deviceId]
	if len(hrefs) == 0 {
		for href := range m {
			hrefs = append(hrefs, href)
		}
		sort.Strings(hrefs)
	}

	var evs []presence.ResourceEvent
	for _, href := range hrefs {
		l, ok := m[href]
		if !ok {
			continue
		}
		delete(m, href)
		evs = append(evs, l.event(presence.TRIGGER_DELETED))
	}
	if len(m) == 0 {
		delete(d.links, deviceId)
	}

	d.mtx.Unlock()

	d.announce(evs)
	return evs
}

func (d *Directory) announce(evs []presence.ResourceEvent) {
	if d.prs == nil {
		return
	}

	for _, ev := range evs {
		cnt := d.prs.NotifyResource(ev)
		log.Debugf("rd: %s reached %d observers", ev.String(), cnt)
	}
}

// Links published by a device, ordered by href.
func (d *Directory) Links(deviceId string) []Link {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	m := d.links[deviceId]
	links := make([]Link, 0, len(m))
	for _, l := range m {
		links = append(links, l)
	}

	sort.Slice(links, func(i, j int) bool {
		return links[i].Href < links[j].Href
	})
	return links
}

func (d *Directory) DeviceIds() []string {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	dis := make([]string, 0, len(d.links))
	for di := range d.links {
		dis = append(dis, di)
	}

	sort.Strings(dis)
	return dis
}

func linksToList(links []Link) []interface{} {
	list := make([]interface{}, len(links))
	for i, l := range links {
		list[i] = l.Map()
	}
	return list
}

func toStrings(v interface{}) []string {
	if v == nil {
		return nil
	}
	return cast.ToStringSlice(v)
}

// Parses a publish request body: {di, ttl, links: [{href, rt, if}]}.
func ParsePublish(val map[string]interface{}) (string, []Link, error) {
	di, err := cast.ToStringE(val["di"])
	if err != nil || di == "" {
		return "", nil, cxutil.NewBadRequestError("publish lacks di")
	}

	ttl := DFLT_TTL
	if v, ok := val["ttl"]; ok {
		ttl, err = cast.ToIntE(v)
		if err != nil {
			return "", nil, cxutil.NewBadRequestError("publish has bad ttl")
		}
	}

	list, ok := val["links"].([]interface{})
	if !ok || len(list) == 0 {
		return "", nil, cxutil.NewBadRequestError("publish lacks links")
	}

	links := make([]Link, 0, len(list))
	for _, item := range list {
		lm, ok := item.(map[string]interface{})
		if !ok {
			return "", nil, cxutil.NewBadRequestError("link is not a map")
		}

		href, err := cast.ToStringE(lm["href"])
		if err != nil || href == "" {
			return "", nil, cxutil.NewBadRequestError("link lacks href")
		}

		links = append(links, Link{
			DeviceId: di,
			Href:     href,
			Rt:       toStrings(lm["rt"]),
			If:       toStrings(lm["if"]),
			Ttl:      ttl,
		})
	}

	return di, links, nil
}
