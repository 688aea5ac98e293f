/*
 * Copyright (c) "Neo4j"
 * Neo4j Sweden AB [https://neo4j.com]
 *
 * This file is part of Neo4j.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      https://www.apache.org/licenses/LICENSE-2.0
 *
 *  Unless required by applicable law or agreed to in writing, software
 *  distributed under the License is distributed on an "AS IS" BASIS,
 *  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  See the License for the specific language governing permissions and
 *  limitations under the License.
 */

// Package log contains the tiny leveled-logging seam used by every
// component of the driver. It is deliberately not backed by a
// third-party logging framework: the driver is embedded inside
// applications that already picked their own, so all the driver does
// is call into whatever Logger the embedder supplied.
package log

import (
	"fmt"

	"github.com/google/uuid"
)

// Names of the components that log through a Logger, used as the
// "name" argument so log lines can be grep'd by subsystem.
const (
	Driver  = "Driver"
	Session = "Session"
	Pool    = "Pool"
	Router  = "Router"
	Bolt    = "Bolt"
)

// Logger is implemented by whatever logging backend the embedding
// application wants driver messages routed to.
type Logger interface {
	Error(name string, id string, err error)
	Warnf(name string, id string, msg string, args ...interface{})
	Infof(name string, id string, msg string, args ...interface{})
	Debugf(name string, id string, msg string, args ...interface{})
}

// Void discards everything, it is the default when no Logger is configured.
type Void struct{}

func (Void) Error(string, string, error)                       {}
func (Void) Warnf(string, string, string, ...interface{})      {}
func (Void) Infof(string, string, string, ...interface{})      {}
func (Void) Debugf(string, string, string, ...interface{})     {}

// BoltLogger receives raw protocol traces for a single session, set per
// SessionConfig rather than globally since the volume is usually too
// high to want enabled for an entire driver.
type BoltLogger interface {
	LogClientMessage(context string, msg string, args ...interface{})
	LogServerMessage(context string, msg string, args ...interface{})
}

type consoleBoltLogger struct{}

func (consoleBoltLogger) LogClientMessage(context string, msg string, args ...interface{}) {
	fmt.Printf("C: "+context+" "+msg+"\n", args...)
}

func (consoleBoltLogger) LogServerMessage(context string, msg string, args ...interface{}) {
	fmt.Printf("S: "+context+" "+msg+"\n", args...)
}

// ConsoleBoltLogger returns a BoltLogger that writes to stdout, handy
// for quick debugging sessions.
func ConsoleBoltLogger() BoltLogger {
	return consoleBoltLogger{}
}

// NewId returns a short correlation id used to tie together log lines
// emitted by the same pool, router or connection instance.
func NewId() string {
	return uuid.NewString()
}
