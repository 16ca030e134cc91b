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

package mods

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kissanima/craftd/internal/config"
)

// TestMain loads config defaults before any test runs: the code under test
// reads the global config (directly or via the logger), which is nil until
// Load is called. A nonexistent file path makes Load apply defaults only.
func TestMain(m *testing.M) {
	if err := config.Load(filepath.Join(os.TempDir(), "craftd-absent-config.yaml")); err != nil {
		panic(err)
	}
	config.Config.Log.File = filepath.Join(os.TempDir(), "craftd-test.log")
	os.Exit(m.Run())
}
