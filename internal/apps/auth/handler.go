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
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/kissanima/craftd/internal/db"
	"github.com/kissanima/craftd/internal/logger"
)

// Session keys.
const (
	SessionKeyUserID   = "user_id"
	SessionKeyUsername = "username"
)

// User-facing error messages. Credential failures use one message so the
// response does not leak whether the username exists.
const (
	ErrMsgInvalidCredentials = "invalid username or password"
	ErrMsgEmptyCredentials   = "username and password cannot be empty"
	ErrMsgUserInactive       = "user account is disabled"
	ErrMsgSessionError       = "session error"
	ErrMsgInternalError      = "internal server error"
	ErrMsgNotLoggedIn        = "not logged in"
)

// LoginRequest is the body for POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the response for login.
type LoginResponse struct {
	ErrorMsg string      `json:"error_msg"`
	Data     interface{} `json:"data"`
}

// UserInfoResponse is the response for GET /api/v1/auth/user-info.
type UserInfoResponse struct {
	ErrorMsg string    `json:"error_msg"`
	Data     *UserInfo `json:"data"`
}

// LogoutResponse is the response for logout.
type LogoutResponse struct {
	ErrorMsg string      `json:"error_msg"`
	Data     interface{} `json:"data"`
}

// Login handles POST /api/v1/auth/login.
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{ErrorMsg: ErrMsgEmptyCredentials})
		return
	}

	username := strings.TrimSpace(req.Username)
	password := req.Password

	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, LoginResponse{ErrorMsg: ErrMsgEmptyCredentials})
		return
	}

	user, err := FindByUsername(db.GetDB(c.Request.Context()), username)
	if err != nil {
		logger.InfoF(c.Request.Context(), "[Auth] login failed, unknown user: %s", username)
		c.JSON(http.StatusUnauthorized, LoginResponse{ErrorMsg: ErrMsgInvalidCredentials})
		return
	}

	if !user.CheckPassword(password) {
		logger.InfoF(c.Request.Context(), "[Auth] login failed, wrong password: %s", username)
		c.JSON(http.StatusUnauthorized, LoginResponse{ErrorMsg: ErrMsgInvalidCredentials})
		return
	}

	if !user.IsActive {
		logger.InfoF(c.Request.Context(), "[Auth] login failed, user disabled: %s", username)
		c.JSON(http.StatusForbidden, LoginResponse{ErrorMsg: ErrMsgUserInactive})
		return
	}

	if err := user.UpdateLastLogin(db.GetDB(c.Request.Context())); err != nil {
		// Not fatal for login.
		logger.ErrorF(c.Request.Context(), "[Auth] failed to update last login: %v", err)
	}

	session := sessions.Default(c)
	session.Set(SessionKeyUserID, user.ID)
	session.Set(SessionKeyUsername, user.Username)
	if err := session.Save(); err != nil {
		logger.ErrorF(c.Request.Context(), "[Auth] failed to save session: %v", err)
		c.JSON(http.StatusInternalServerError, LoginResponse{ErrorMsg: ErrMsgSessionError})
		return
	}

	logger.InfoF(c.Request.Context(), "[Auth] login ok: %d %s", user.ID, user.Username)
	c.JSON(http.StatusOK, LoginResponse{Data: user.ToUserInfo()})
}

// Logout handles POST /api/v1/auth/logout.
func Logout(c *gin.Context) {
	session := sessions.Default(c)

	userID := session.Get(SessionKeyUserID)
	username := session.Get(SessionKeyUsername)

	session.Clear()
	if err := session.Save(); err != nil {
		logger.ErrorF(c.Request.Context(), "[Auth] failed to clear session: %v", err)
		c.JSON(http.StatusInternalServerError, LogoutResponse{ErrorMsg: ErrMsgSessionError})
		return
	}

	logger.InfoF(c.Request.Context(), "[Auth] logout ok: %v %v", userID, username)
	c.JSON(http.StatusOK, LogoutResponse{})
}

// GetUserInfo handles GET /api/v1/auth/user-info.
func GetUserInfo(c *gin.Context) {
	userID := GetUserIDFromContext(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, UserInfoResponse{ErrorMsg: ErrMsgNotLoggedIn})
		return
	}

	user, err := FindByID(db.GetDB(c.Request.Context()), userID)
	if err != nil {
		logger.ErrorF(c.Request.Context(), "[Auth] failed to load user info: %v", err)
		c.JSON(http.StatusInternalServerError, UserInfoResponse{ErrorMsg: ErrMsgInternalError})
		return
	}

	c.JSON(http.StatusOK, UserInfoResponse{Data: user.ToUserInfo()})
}

// GetUserIDFromContext returns the logged-in user ID, or 0.
func GetUserIDFromContext(c *gin.Context) uint {
	session := sessions.Default(c)
	userID := session.Get(SessionKeyUserID)
	if userID == nil {
		return 0
	}

	// Session codecs round-trip numbers through several types.
	switch v := userID.(type) {
	case uint:
		return v
	case uint64:
		return uint(v)
	case int64:
		return uint(v)
	case int:
		return uint(v)
	case float64:
		return uint(v)
	default:
		return 0
	}
}

// GetUsernameFromContext returns the logged-in username, or "".
func GetUsernameFromContext(c *gin.Context) string {
	session := sessions.Default(c)
	username := session.Get(SessionKeyUsername)
	if username == nil {
		return ""
	}
	if s, ok := username.(string); ok {
		return s
	}
	return ""
}
