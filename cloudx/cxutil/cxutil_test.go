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

package cxutil

import (
	"fmt"
	"testing"

	"github.com/runtimeco/go-coap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		code coap.COAPCode
	}{
		{NewMalformedRouteError("x"), coap.BadRequest},
		{NewBadRequestError("x"), coap.BadRequest},
		{NewInvalidTokenError("x"), coap.BadRequest},
		{NewNotFoundError("x"), coap.NotFound},
		{NewSesnClosedError("x"), coap.ServiceUnavailable},
		{NewXportError("x"), coap.ServiceUnavailable},
		{NewPolicyResponseError("x"), coap.InternalServerError},
		{fmt.Errorf("x"), coap.InternalServerError},
	}

	for _, c := range cases {
		assert.Equal(t, c.code, ErrorCode(c.err), "%T", c.err)
	}
}

func TestPredicatesRejectNil(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsBadRequest(nil))
	assert.False(t, IsSesnClosed(nil))
}

func TestDecodeCborMap(t *testing.T) {
	m, err := DecodeCborMap(nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	_, err = DecodeCborMap([]byte{0xa1, 0x61})
	assert.True(t, IsBadRequest(err))

	b, err := EncodeCborMap(map[string]interface{}{"gp": "Allowed"})
	require.NoError(t, err)
	m, err = DecodeCborMap(b)
	require.NoError(t, err)
	assert.Equal(t, "Allowed", m["gp"])
}

func TestCborRawUint(t *testing.T) {
	r, err := CborRawUint(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02}, []byte(r))

	_, err = CborRawUint(24)
	assert.Error(t, err)
}
