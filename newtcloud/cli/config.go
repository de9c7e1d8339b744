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

	"github.com/spf13/cobra"

	"mynewt.apache.org/newtcloud/newtcloud/cnutil"
	"mynewt.apache.org/newtcloud/newtcloud/config"
)

func configShowCmd(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cnutil.ConfigFile)
	if err != nil {
		cnUsage(nil, err)
	}

	b, err := cfg.Encode()
	if err != nil {
		cnUsage(nil, err)
	}

	fmt.Printf("%s\n", b)
}

func configInitCmd(cmd *cobra.Command, args []string) {
	filename := cnutil.ConfigFile
	if filename == "" {
		var err error
		filename, err = config.DefaultFilename()
		if err != nil {
			cnUsage(nil, err)
		}
	}

	if err := config.NewConfig().Save(filename); err != nil {
		cnUsage(nil, err)
	}
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the server configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:     "show",
		Short:   "Display the effective configuration",
		Example: "  " + cnutil.ToolInfo.ExeName + " config show",
		Run:     configShowCmd,
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:     "init",
		Short:   "Write a configuration file holding the defaults",
		Example: "  " + cnutil.ToolInfo.ExeName + " config init -c ~/cloud.json",
		Run:     configInitCmd,
	})

	return cfgCmd
}
