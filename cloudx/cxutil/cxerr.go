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

	"github.com/runtimeco/go-coap"
)

// Represents a request path that does not name a routing target.
type MalformedRouteError struct {
	Text string
}

func NewMalformedRouteError(text string) *MalformedRouteError {
	return &MalformedRouteError{
		Text: text,
	}
}

func FmtMalformedRouteError(format string,
	args ...interface{}) *MalformedRouteError {

	return NewMalformedRouteError(fmt.Sprintf(format, args...))
}

func (e *MalformedRouteError) Error() string {
	return e.Text
}

func IsMalformedRoute(err error) bool {
	_, ok := err.(*MalformedRouteError)
	return ok
}

// Represents a response whose token was never issued on this connection, or
// whose exchange was already cleaned up.
type OrphanResponseError struct {
	Text  string
	Token []byte
}

func NewOrphanResponseError(token []byte) *OrphanResponseError {
	return &OrphanResponseError{
		Text:  fmt.Sprintf("no pending exchange for token %x", token),
		Token: token,
	}
}

func (e *OrphanResponseError) Error() string {
	return e.Text
}

func IsOrphanResponse(err error) bool {
	_, ok := err.(*OrphanResponseError)
	return ok
}

// Represents a lookup miss: no subscription, no device, no resource.
type NotFoundError struct {
	Text string
}

func NewNotFoundError(text string) *NotFoundError {
	return &NotFoundError{
		Text: text,
	}
}

func FmtNotFoundError(format string, args ...interface{}) *NotFoundError {
	return NewNotFoundError(fmt.Sprintf(format, args...))
}

func (e *NotFoundError) Error() string {
	return e.Text
}

func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// Represents a policy service answer that carries no usable decision.  This
// is a server-side fault, not the caller's.
type PolicyResponseError struct {
	Text string
}

func NewPolicyResponseError(text string) *PolicyResponseError {
	return &PolicyResponseError{
		Text: text,
	}
}

func FmtPolicyResponseError(format string,
	args ...interface{}) *PolicyResponseError {

	return NewPolicyResponseError(fmt.Sprintf(format, args...))
}

func (e *PolicyResponseError) Error() string {
	return e.Text
}

func IsPolicyResponse(err error) bool {
	_, ok := err.(*PolicyResponseError)
	return ok
}

type InvalidTokenError struct {
	Text string
}

func NewInvalidTokenError(text string) *InvalidTokenError {
	return &InvalidTokenError{
		Text: text,
	}
}

func (e *InvalidTokenError) Error() string {
	return e.Text
}

func IsInvalidToken(err error) bool {
	_, ok := err.(*InvalidTokenError)
	return ok
}

// Represents a request whose payload or options cannot be understood.
type BadRequestError struct {
	Text string
}

func NewBadRequestError(text string) *BadRequestError {
	return &BadRequestError{
		Text: text,
	}
}

func FmtBadRequestError(format string, args ...interface{}) *BadRequestError {
	return NewBadRequestError(fmt.Sprintf(format, args...))
}

func (e *BadRequestError) Error() string {
	return e.Text
}

func IsBadRequest(err error) bool {
	_, ok := err.(*BadRequestError)
	return ok
}

type SesnClosedError struct {
	Text string
}

func NewSesnClosedError(text string) *SesnClosedError {
	return &SesnClosedError{
		Text: text,
	}
}

func (e *SesnClosedError) Error() string {
	return e.Text
}

func IsSesnClosed(err error) bool {
	_, ok := err.(*SesnClosedError)
	return ok
}

// Represents a low-level transport error.
type XportError struct {
	Text string
}

func NewXportError(text string) *XportError {
	return &XportError{text}
}

func (e *XportError) Error() string {
	return e.Text
}

func IsXport(err error) bool {
	if err == nil {
		return false
	}

	_, ok := err.(*XportError)
	return ok
}

// Maps an error to the terminal response code reported to the original
// caller.  Anything unrecognized is a server fault.
func ErrorCode(err error) coap.COAPCode {
	switch {
	case IsMalformedRoute(err), IsBadRequest(err), IsInvalidToken(err):
		return coap.BadRequest
	case IsNotFound(err):
		return coap.NotFound
	case IsSesnClosed(err), IsXport(err):
		return coap.ServiceUnavailable
	default:
		return coap.InternalServerError
	}
}
