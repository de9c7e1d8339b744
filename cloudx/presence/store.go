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

package presence

import (
	"context"
	"sync"
)

// Persists the last observed on/off state of each device.
type Store interface {
	// Returns the state of a device; false if the device was never seen.
	Get(ctx context.Context, deviceId string) (DevState, bool, error)
	Upsert(ctx context.Context, deviceId string, state DevState) error
}

type MemStore struct {
	mtx    sync.Mutex
	states map[string]DevState
}

func NewMemStore() *MemStore {
	return &MemStore{
		states: map[string]DevState{},
	}
}

func (s *MemStore) Get(ctx context.Context,
	deviceId string) (DevState, bool, error) {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	state, ok := s.states[deviceId]
	return state, ok, nil
}

func (s *MemStore) Upsert(ctx context.Context, deviceId string,
	state DevState) error {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.states[deviceId] = state
	return nil
}
