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

// Package metrics provides Prometheus instrumentation for the cloud server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DFLT_NAMESPACE = "newtcloud"

type Metrics struct {
	ActiveConnections *prometheus.GaugeVec
	TotalConnections  *prometheus.CounterVec
	RequestsTotal     *prometheus.CounterVec
	RoutesTotal       *prometheus.CounterVec
	RouteStates       *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	DevicesOnline     prometheus.Gauge

	gatherer prometheus.Gatherer
}

// Creates the collectors and registers them with reg.  A nil reg selects a
// fresh private registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = DFLT_NAMESPACE
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	f := promauto.With(reg)

	return &Metrics{
		ActiveConnections: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently open connections",
			},
			[]string{"transport"},
		),
		TotalConnections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of accepted connections",
			},
			[]string{"transport"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of CoAP requests received",
			},
			[]string{"method"},
		),
		RoutesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routes_total",
				Help:      "Routed requests by terminal response code",
			},
			[]string{"code"},
		),
		RouteStates: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "route_states_total",
				Help:      "Route state machine transitions",
			},
			[]string{"state"},
		),
		Notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications delivered to observers",
			},
			[]string{"manager"},
		),
		DevicesOnline: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "devices_online",
				Help:      "Number of signed-in devices",
			},
		),

		gatherer: reg,
	}
}

func (m *Metrics) ConnOpened(transport string) {
	if m == nil {
		return
	}

	m.ActiveConnections.WithLabelValues(transport).Inc()
	m.TotalConnections.WithLabelValues(transport).Inc()
}

func (m *Metrics) ConnClosed(transport string) {
	if m == nil {
		return
	}

	m.ActiveConnections.WithLabelValues(transport).Dec()
}

func (m *Metrics) Request(method string) {
	if m == nil {
		return
	}

	if method == "" {
		method = "other"
	}
	m.RequestsTotal.WithLabelValues(method).Inc()
}

func (m *Metrics) RouteState(state string) {
	if m == nil {
		return
	}

	m.RouteStates.WithLabelValues(state).Inc()
}

func (m *Metrics) Routed(code string) {
	if m == nil {
		return
	}

	m.RoutesTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) Notified(manager string, count int) {
	if m == nil || count <= 0 {
		return
	}

	m.Notifications.WithLabelValues(manager).Add(float64(count))
}

func (m *Metrics) SetDevicesOnline(n int) {
	if m == nil {
		return
	}

	m.DevicesOnline.Set(float64(n))
}

// Serves the collected metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
