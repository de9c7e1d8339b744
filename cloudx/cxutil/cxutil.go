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
	"encoding/hex"

	log "github.com/sirupsen/logrus"
)

var logLevel log.Level = log.InfoLevel

func SetLogLevel(level log.Level) {
	logLevel = level
	log.SetLevel(level)
}

func LogLevel() log.Level {
	return logLevel
}

func logEnabled(level log.Level) bool {
	return log.IsLevelEnabled(level)
}

func LogTx(sesnId string, b []byte) {
	if logEnabled(log.DebugLevel) {
		log.Debugf("[%s] tx CoAP: %s", sesnId, hex.Dump(b))
	}
}

func LogRx(sesnId string, b []byte) {
	if logEnabled(log.DebugLevel) {
		log.Debugf("[%s] rx CoAP: %s", sesnId, hex.Dump(b))
	}
}

func LogAddExchange(sesnId string, originToken []byte, internalToken []byte) {
	log.Debugf("[%s] add exchange; origin=%x internal=%x",
		sesnId, originToken, internalToken)
}

func LogRemoveExchange(sesnId string, internalToken []byte) {
	log.Debugf("[%s] remove exchange; internal=%x", sesnId, internalToken)
}
