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
	"reflect"

	"github.com/fatih/structs"
	"github.com/ugorji/go/codec"
)

func cborHandle() *codec.CborHandle {
	h := new(codec.CborHandle)
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	h.Canonical = true
	return h
}

func EncodeCbor(v interface{}) ([]byte, error) {
	var b []byte
	enc := codec.NewEncoderBytes(&b, cborHandle())
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode CBOR: %s", err.Error())
	}

	return b, nil
}

func DecodeCbor(b []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(b, cborHandle())
	if err := dec.Decode(v); err != nil {
		return NewBadRequestError(
			fmt.Sprintf("invalid CBOR payload: %s", err.Error()))
	}

	return nil
}

func EncodeCborMap(m map[string]interface{}) ([]byte, error) {
	return EncodeCbor(m)
}

func DecodeCborMap(b []byte) (map[string]interface{}, error) {
	m := map[string]interface{}{}
	if len(b) == 0 {
		return m, nil
	}

	if err := DecodeCbor(b, &m); err != nil {
		return nil, err
	}

	return m, nil
}

// Converts a tagged payload struct into the generic mapping handed to the
// codec.  Fields carry `structs:"name"` tags.
func StructToMap(s interface{}) map[string]interface{} {
	return structs.Map(s)
}

// Writes v as a bare CBOR major-type-0 byte.  The protocol's compact
// enumerations (e.g., the presence trigger) must be encoded this way rather
// than through the general integer path; only values below 24 fit.
func CborRawUint(v uint8) (codec.Raw, error) {
	if v >= 24 {
		return nil, fmt.Errorf("compact enum value out of range: %d", v)
	}

	return codec.Raw{v}, nil
}
