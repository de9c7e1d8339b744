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
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mynewt.apache.org/newtcloud/cloudx/cxutil"
	"mynewt.apache.org/newtcloud/newtcloud/cnutil"
)

var NewtcloudLogLevel log.Level

var onExitMtx sync.Mutex
var onExit func()

// Registers the function that stops a running server.
func CnSetOnExit(fn func()) {
	onExitMtx.Lock()
	defer onExitMtx.Unlock()

	onExit = fn
}

// Stops a running server.  Returns false if none is running.
func Shutdown() bool {
	onExitMtx.Lock()
	fn := onExit
	onExitMtx.Unlock()

	if fn == nil {
		return false
	}

	fn()
	return true
}

func cnUsage(cmd *cobra.Command, err error) {
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: ")
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
	}

	if cmd != nil {
		fmt.Printf("\n")
		fmt.Printf("%s - ", cmd.Name())
		cmd.Help()
	}

	os.Exit(1)
}

func Commands() *cobra.Command {
	logLevelStr := ""
	cnCmd := &cobra.Command{
		Use:   cnutil.ToolInfo.ExeName,
		Short: cnutil.ToolInfo.ShortName + " connects devices to their clients",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			NewtcloudLogLevel, err = log.ParseLevel(logLevelStr)
			if err != nil {
				cnUsage(nil, err)
			}

			cxutil.SetLogLevel(NewtcloudLogLevel)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	cnCmd.PersistentFlags().StringVarP(&logLevelStr, "loglevel", "l", "info",
		"log level to use")

	cnCmd.PersistentFlags().StringVarP(&cnutil.ConfigFile, "config", "c", "",
		"configuration file to use instead of ~/"+
			cnutil.ToolInfo.CfgFilename)

	versCmd := &cobra.Command{
		Use:     "version",
		Short:   "Display the " + cnutil.ToolInfo.ShortName + " version number",
		Example: "  " + cnutil.ToolInfo.ExeName + " version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n",
				cnutil.ToolInfo.LongName,
				cnutil.ToolInfo.VersionString)
		},
	}
	cnCmd.AddCommand(versCmd)

	cnCmd.AddCommand(serveCmd())
	cnCmd.AddCommand(configCmd())

	return cnCmd
}
