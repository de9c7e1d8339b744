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

package config

import (
	"crypto/tls"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"

	"mynewt.apache.org/newtcloud/cloudx/cloud"
	"mynewt.apache.org/newtcloud/cloudx/route"
	"mynewt.apache.org/newtcloud/cloudx/tcp"
	"mynewt.apache.org/newtcloud/newtcloud/cnutil"
)

type Config struct {
	Addr        string `codec:"addr" env:"ADDR"`
	WsAddr      string `codec:"wsaddr" env:"WS_ADDR"`
	MetricsAddr string `codec:"metricsaddr" env:"METRICS_ADDR"`

	CertFile string `codec:"certfile" env:"CERT_FILE"`
	KeyFile  string `codec:"keyfile" env:"KEY_FILE"`

	MaxConns int `codec:"maxconns" env:"MAX_CONNS"`
	PoolSize int `codec:"poolsize" env:"POOL_SIZE"`

	RoutePrefix string `codec:"routeprefix" env:"ROUTE_PREFIX"`
	AccountAddr string `codec:"accountaddr" env:"ACCOUNT_ADDR"`

	// Presence is kept in memory unless a database is configured.
	MongoUri string `codec:"mongouri" env:"MONGO_URI"`
	MongoDb  string `codec:"mongodb" env:"MONGO_DB"`

	LogLevel string `codec:"loglevel" env:"LOG_LEVEL"`

	LegacyPresenceUpgrade bool `codec:"legacypresence" env:"LEGACY_PRESENCE"`

	// Seconds; partial seconds allowed.
	OpTimeout float64 `codec:"optimeout" env:"OP_TIMEOUT"`
}

func NewConfig() Config {
	return Config{
		Addr:                  cloud.DFLT_ADDR,
		PoolSize:              tcp.DFLT_POOL_SIZE,
		RoutePrefix:           route.DFLT_PREFIX,
		MongoDb:               cnutil.ToolInfo.ExeName,
		LogLevel:              "info",
		LegacyPresenceUpgrade: true,
		OpTimeout:             cloud.DFLT_OP_TIMEOUT.Seconds(),
	}
}

func DefaultFilename() (string, error) {
	dir, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "cannot locate home directory")
	}

	return filepath.Join(dir, cnutil.ToolInfo.CfgFilename), nil
}

func readFile(filename string, cfg *Config) error {
	log.Debugf("Reading configuration from %s", filename)

	blob, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}

	dec := codec.NewDecoderBytes(blob, new(codec.JsonHandle))
	if err := dec.Decode(cfg); err != nil {
		return errors.Wrapf(err, "error reading configuration (%s)",
			filename)
	}

	return nil
}

// Builds the configuration: defaults, then the JSON file, then environment
// variables.  An empty filename selects the default file, which may be
// absent.
func Load(filename string) (Config, error) {
	cfg := NewConfig()

	if filename == "" {
		dflt, err := DefaultFilename()
		if err != nil {
			return cfg, err
		}

		if err := readFile(dflt, &cfg); err != nil && !os.IsNotExist(err) {
			return cfg, err
		}
	} else {
		path, err := homedir.Expand(filename)
		if err != nil {
			return cfg, errors.Wrap(err, "bad configuration filename")
		}

		if err := readFile(path, &cfg); err != nil {
			return cfg, errors.Wrap(err, "cannot read configuration")
		}
	}

	err := env.ParseWithOptions(&cfg, env.Options{
		Prefix: cnutil.ToolInfo.EnvPrefix,
	})
	if err != nil {
		return cfg, errors.Wrap(err, "bad environment configuration")
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("no listen address configured")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("certfile and keyfile must be set together")
	}
	if c.MaxConns < 0 || c.PoolSize < 0 {
		return errors.New("connection limits cannot be negative")
	}
	if c.OpTimeout <= 0 {
		return errors.New("optimeout must be positive")
	}

	return nil
}

// Nil when TLS is not configured.
func (c Config) TLSConfig() (*tls.Config, error) {
	if c.CertFile == "" {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load TLS key pair")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (c Config) CloudConfig() (cloud.Config, error) {
	tlsCfg, err := c.TLSConfig()
	if err != nil {
		return cloud.Config{}, err
	}

	cc := cloud.NewConfig()
	cc.Addr = c.Addr
	cc.WsAddr = c.WsAddr
	cc.MetricsAddr = c.MetricsAddr
	cc.TLSConfig = tlsCfg
	cc.MaxConns = c.MaxConns
	cc.PoolSize = c.PoolSize
	cc.RoutePrefix = c.RoutePrefix
	cc.AccountAddr = c.AccountAddr
	cc.LegacyPresenceUpgrade = c.LegacyPresenceUpgrade
	cc.OpTimeout = time.Duration(c.OpTimeout * float64(time.Second))

	return cc, nil
}

// Renders the configuration as indented JSON.
func (c Config) Encode() ([]byte, error) {
	h := new(codec.JsonHandle)
	h.Indent = 4

	var b []byte
	if err := codec.NewEncoderBytes(&b, h).Encode(c); err != nil {
		return nil, errors.Wrap(err, "failed to encode configuration")
	}

	return b, nil
}

// Writes the configuration to filename unless the file already exists.
func (c Config) Save(filename string) error {
	path, err := homedir.Expand(filename)
	if err != nil {
		return errors.Wrap(err, "bad configuration filename")
	}

	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("%s already exists", path)
	}

	b, err := c.Encode()
	if err != nil {
		return err
	}

	if err := ioutil.WriteFile(path, append(b, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "cannot write %s", path)
	}

	log.Infof("Wrote configuration to %s", path)
	return nil
}
