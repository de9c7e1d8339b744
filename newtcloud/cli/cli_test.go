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

package cli

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	root := Commands()

	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"version", "serve", "config"}, names)

	for _, flag := range []string{"loglevel", "config"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionSetsLogLevel(t *testing.T) {
	root := Commands()
	root.SetArgs([]string{"version", "-l", "debug"})

	require.NoError(t, root.Execute())
	assert.Equal(t, log.DebugLevel, NewtcloudLogLevel)
}

func TestShutdown(t *testing.T) {
	assert.False(t, Shutdown())

	done := make(chan struct{})
	CnSetOnExit(func() { close(done) })
	defer CnSetOnExit(nil)

	assert.True(t, Shutdown())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("exit function not called")
	}
}
