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

// Package auth provides user accounts and session-based authentication.
// Package auth 提供用户账户和基于会话的认证功能。
package auth

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound      = errors.New("auth: user not found")
	ErrInvalidPassword   = errors.New("auth: invalid password")
	ErrUserInactive      = errors.New("auth: user is disabled")
	ErrEmptyCredentials  = errors.New("auth: username or password cannot be empty")
	ErrPasswordTooShort  = errors.New("auth: password must be at least 6 characters")
	ErrUserAlreadyExists = errors.New("auth: username already exists")
)

// DefaultBcryptCost is used when no cost is configured.
const DefaultBcryptCost = 10

// User is a daemon account. Only hashed passwords are stored.
// User 用户模型，仅存储密码哈希。
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string    `json:"username" gorm:"size:255;unique;not null"`
	PasswordHash string    `json:"-" gorm:"column:password_hash;size:255;not null"`
	Nickname     string    `json:"nickname" gorm:"size:255"`
	OAuthID      string    `json:"oauth_id,omitempty" gorm:"column:oauth_id;size:255;index"`
	AvatarURL    string    `json:"avatar_url,omitempty" gorm:"size:500"`
	IsActive     bool      `json:"is_active" gorm:"default:true"`
	IsAdmin      bool      `json:"is_admin" gorm:"default:false"`
	LastLoginAt  time.Time `json:"last_login_at"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

// SetPassword hashes password with bcrypt. A cost of 0 uses the default.
func (u *User) SetPassword(password string, cost int) error {
	if password == "" {
		return ErrEmptyCredentials
	}
	if len(password) < 6 {
		return ErrPasswordTooShort
	}

	if cost <= 0 {
		cost = DefaultBcryptCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}

	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	if password == "" || u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// FindByUsername looks a user up by username.
func FindByUsername(db *gorm.DB, username string) (*User, error) {
	var user User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByID looks a user up by primary key.
func FindByID(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Create inserts the user.
func (u *User) Create(db *gorm.DB) error {
	return db.Create(u).Error
}

// UpdateLastLogin stamps the login time.
func (u *User) UpdateLastLogin(db *gorm.DB) error {
	u.LastLoginAt = time.Now()
	return db.Model(u).Update("last_login_at", u.LastLoginAt).Error
}

// UserInfo is the API view of a user, without credentials.
// UserInfo 用户信息（用于 API 响应，不包含敏感信息）。
type UserInfo struct {
	ID          uint      `json:"id"`
	Username    string    `json:"username"`
	Nickname    string    `json:"nickname"`
	IsActive    bool      `json:"is_active"`
	IsAdmin     bool      `json:"is_admin"`
	LastLoginAt time.Time `json:"last_login_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToUserInfo converts a User to its API view.
func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		ID:          u.ID,
		Username:    u.Username,
		Nickname:    u.Nickname,
		IsActive:    u.IsActive,
		IsAdmin:     u.IsAdmin,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

// EnsureDefaultAdmin creates the bootstrap admin account if no users exist
// yet, so a fresh install is reachable.
func EnsureDefaultAdmin(db *gorm.DB, username, password string, cost int) error {
	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	admin := &User{
		Username: username,
		Nickname: "Administrator",
		IsActive: true,
		IsAdmin:  true,
	}
	if err := admin.SetPassword(password, cost); err != nil {
		return err
	}
	return admin.Create(db)
}
