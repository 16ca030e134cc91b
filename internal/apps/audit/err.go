/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package audit

import "errors"

var (
	// ErrCommandLogNotFound indicates the requested command log does not exist.
	ErrCommandLogNotFound = errors.New("audit: command log not found")
	// ErrCommandEmpty indicates the command text is empty.
	ErrCommandEmpty = errors.New("audit: command cannot be empty")
	// ErrSourceInvalid indicates the command source is not a known value.
	ErrSourceInvalid = errors.New("audit: invalid command source")
	// ErrAuditLogNotFound indicates the requested audit log does not exist.
	ErrAuditLogNotFound = errors.New("audit: audit log not found")
	// ErrActionEmpty indicates the action is empty.
	ErrActionEmpty = errors.New("audit: action cannot be empty")
)
