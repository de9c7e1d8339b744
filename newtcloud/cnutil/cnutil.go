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

package cnutil

import (
	"fmt"
	"os"
	"runtime"
)

type ToolInfoType struct {
	ExeName       string
	ShortName     string
	LongName      string
	VersionString string
	CfgFilename   string
	EnvPrefix     string
}

var ToolInfo = ToolInfoType{
	ExeName:       "newtcloud",
	ShortName:     "Newtcloud",
	LongName:      "Apache Newt Cloud Interconnect",
	VersionString: "0.1.0",
	CfgFilename:   ".newtcloud.json",
	EnvPrefix:     "NEWTCLOUD_",
}

var ConfigFile string

// Writes the stacks of all goroutines to stderr.
func PrintStacks() {
	buf := make([]byte, 1024*1024)
	n := runtime.Stack(buf, true)
	fmt.Fprintf(os.Stderr, "%s", buf[:n])
}
