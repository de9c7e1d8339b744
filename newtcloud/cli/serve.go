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
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mynewt.apache.org/newtcloud/cloudx/cloud"
	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/cloudx/metrics"
	"mynewt.apache.org/newtcloud/cloudx/presence"
	"mynewt.apache.org/newtcloud/newtcloud/cnutil"
	"mynewt.apache.org/newtcloud/newtcloud/config"
)

const CONNECT_TIMEOUT = 10 * time.Second

// Reads the configuration.  The configured log level applies unless one was
// given on the command line.
func loadConfig(levelSet bool) (config.Config, error) {
	cfg, err := config.Load(cnutil.ConfigFile)
	if err != nil {
		return cfg, err
	}

	if !levelSet && cfg.LogLevel != "" {
		lvl, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return cfg, errors.Wrap(err, "bad loglevel in configuration")
		}
		NewtcloudLogLevel = lvl
	}

	return cfg, nil
}

func openStore(ctx context.Context,
	cfg config.Config) (presence.Store, func(), error) {

	if cfg.MongoUri == "" {
		return presence.NewMemStore(), func() {}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, CONNECT_TIMEOUT)
	defer cancel()

	ms, err := presence.NewMongoStore(cctx, cfg.MongoUri, cfg.MongoDb)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		cctx, cancel := context.WithTimeout(context.Background(),
			CONNECT_TIMEOUT)
		defer cancel()

		if err := ms.Close(cctx); err != nil {
			log.Errorf("failed to close presence store: %s", err.Error())
		}
	}
	return ms, closeFn, nil
}

func runServe(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	CnSetOnExit(cancel)
	defer CnSetOnExit(nil)

	cc, err := cfg.CloudConfig()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sys, err := cloud.NewSystem(cc, store,
		metrics.New(metrics.DFLT_NAMESPACE, nil))
	if err != nil {
		return err
	}

	log.Infof("%s %s starting", cnutil.ToolInfo.LongName,
		cnutil.ToolInfo.VersionString)

	if err := sys.Run(ctx); err != nil {
		return err
	}

	log.Infof("%s stopped", cnutil.ToolInfo.ExeName)
	return nil
}

func serveRunCmd(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd.Flags().Changed("loglevel"))
	if err != nil {
		cnUsage(nil, err)
	}
	cxutil.SetLogLevel(NewtcloudLogLevel)

	if err := runServe(cfg); err != nil {
		cnUsage(nil, err)
	}
}

func serveCmd() *cobra.Command {
	serveHelpText := "Accept device and client connections and route " +
		"requests between them.\n\nSettings come from the configuration " +
		"file and from " + cnutil.ToolInfo.EnvPrefix + "* environment " +
		"variables."

	return &cobra.Command{
		Use:   "serve",
		Short: "Run the interconnection server",
		Long:  serveHelpText,
		Run:   serveRunCmd,
	}
}
