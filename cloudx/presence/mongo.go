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
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const MONGO_COLLECTION = "devicepresence"

type mongoDoc struct {
	DeviceId string `bson:"di"`
	State    string `bson:"state"`
	Updated  int64  `bson:"updated"`
}

type MongoStore struct {
	OpTimeout time.Duration

	client *mongo.Client
	coll   *mongo.Collection
}

// Connects to the database at uri and prepares the presence collection.
func NewMongoStore(ctx context.Context, uri string,
	dbName string) (*MongoStore, error) {

	opts := options.Client().ApplyURI(uri).SetAppName("newtcloud")
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", uri)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, errors.Wrapf(err, "failed to ping %s", uri)
	}

	s := &MongoStore{
		OpTimeout: 5 * time.Second,
		client:    client,
		coll:      client.Database(dbName).Collection(MONGO_COLLECTION),
	}

	_, err = s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "di", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("presence_di_unique"),
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to create presence index")
	}

	log.Debugf("presence store ready; db=%s coll=%s", dbName, MONGO_COLLECTION)
	return s, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Get(ctx context.Context,
	deviceId string) (DevState, bool, error) {

	ctx, cancel := context.WithTimeout(ctx, s.OpTimeout)
	defer cancel()

	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "di", Value: deviceId}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return DEV_STATE_OFF, false, nil
		}
		return DEV_STATE_OFF, false,
			errors.Wrapf(err, "presence lookup failed; di=%s", deviceId)
	}

	state, err := ParseDevState(doc.State)
	if err != nil {
		return DEV_STATE_OFF, false, err
	}

	return state, true, nil
}

func (s *MongoStore) Upsert(ctx context.Context, deviceId string,
	state DevState) error {

	ctx, cancel := context.WithTimeout(ctx, s.OpTimeout)
	defer cancel()

	doc := mongoDoc{
		DeviceId: deviceId,
		State:    state.String(),
		Updated:  time.Now().Unix(),
	}

	_, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "di", Value: deviceId}}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(err, "presence update failed; di=%s", deviceId)
	}

	return nil
}
