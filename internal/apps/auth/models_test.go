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

package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	tempDir, err := os.MkdirTemp("", "auth_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(tempDir, "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	if err := db.AutoMigrate(&User{}); err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.RemoveAll(tempDir)
	}
	return db, cleanup
}

// Any password that passes SetPassword must verify with CheckPassword, and
// a different password must not.
func TestProperty_PasswordHashRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	// bcrypt is slow; keep iterations modest.
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(42)

	properties := gopter.NewProperties(parameters)

	properties.Property("set then check succeeds, wrong password fails", prop.ForAll(
		func(password string) bool {
			u := &User{Username: "prop"}
			if err := u.SetPassword(password, bcryptTestCost); err != nil {
				return false
			}
			if !u.CheckPassword(password) {
				return false
			}
			return !u.CheckPassword(password + "x")
		},
		gen.RegexMatch(`[a-zA-Z0-9!@#]{6,30}`).SuchThat(func(s string) bool {
			return len(s) >= 6
		}),
	))

	properties.TestingRun(t)
}

// Minimum cost keeps the property test fast.
const bcryptTestCost = 4

func TestSetPasswordValidation(t *testing.T) {
	u := &User{}
	assert.ErrorIs(t, u.SetPassword("", 0), ErrEmptyCredentials)
	assert.ErrorIs(t, u.SetPassword("short", 0), ErrPasswordTooShort)

	require.NoError(t, u.SetPassword("secret123", bcryptTestCost))
	assert.NotEqual(t, "secret123", u.PasswordHash)
	assert.True(t, u.CheckPassword("secret123"))
	assert.False(t, u.CheckPassword(""))
}

func TestFindByUsername(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	u := &User{Username: "steve", IsActive: true}
	require.NoError(t, u.SetPassword("secret123", bcryptTestCost))
	require.NoError(t, u.Create(db))

	got, err := FindByUsername(db, "steve")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = FindByUsername(db, "alex")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestEnsureDefaultAdmin(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, EnsureDefaultAdmin(db, "admin", "admin123", bcryptTestCost))

	admin, err := FindByUsername(db, "admin")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)
	assert.True(t, admin.IsActive)
	assert.True(t, admin.CheckPassword("admin123"))

	// Second call must not create another account or reset the password.
	require.NoError(t, admin.SetPassword("changed456", bcryptTestCost))
	require.NoError(t, db.Save(admin).Error)
	require.NoError(t, EnsureDefaultAdmin(db, "admin", "admin123", bcryptTestCost))

	var count int64
	require.NoError(t, db.Model(&User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	admin, err = FindByUsername(db, "admin")
	require.NoError(t, err)
	assert.True(t, admin.CheckPassword("changed456"))
}

func TestUserInfoOmitsPassword(t *testing.T) {
	u := &User{Username: "steve"}
	require.NoError(t, u.SetPassword("secret123", bcryptTestCost))

	info := u.ToUserInfo()
	assert.Equal(t, "steve", info.Username)
}
