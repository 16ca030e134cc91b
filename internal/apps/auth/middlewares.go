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

	"github.com/gin-gonic/gin"

	"github.com/kissanima/craftd/internal/db"
	"github.com/kissanima/craftd/internal/logger"
	"github.com/kissanima/craftd/internal/otel_trace"
)

// ContextKeyUser is the gin context key holding the authenticated *User.
const ContextKeyUser = "auth_user"

// ErrorResponse is the envelope for middleware rejections.
// ErrorResponse 中间件拒绝请求时的响应结构。
type ErrorResponse struct {
	ErrorMsg string      `json:"error_msg"`
	Data     interface{} `json:"data"`
}

// LoginRequired rejects requests without a valid logged-in session.
// LoginRequired 登录验证中间件，未登录时返回 401 错误。
func LoginRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := otel_trace.Start(c.Request.Context(), "LoginRequired")
		defer span.End()

		userID := GetUserIDFromContext(c)
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				ErrorMsg: ErrMsgNotLoggedIn,
			})
			return
		}

		// Reload from the database so deactivated users are cut off even
		// with a live session.
		user, err := FindByID(db.GetDB(ctx), userID)
		if err != nil {
			logger.ErrorF(ctx, "[LoginRequired] user not found: %d, %v", userID, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				ErrorMsg: ErrMsgNotLoggedIn,
			})
			return
		}

		if !user.IsActive {
			logger.InfoF(ctx, "[LoginRequired] user disabled: %d %s", user.ID, user.Username)
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				ErrorMsg: ErrMsgUserInactive,
			})
			return
		}

		SetUserToContext(c, user)
		c.Next()
	}
}

// AdminRequired rejects non-admin users. Must run after LoginRequired.
// AdminRequired 管理员权限验证中间件，非管理员时返回 403 错误。
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := otel_trace.Start(c.Request.Context(), "AdminRequired")
		defer span.End()

		user := GetUserFromContext(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				ErrorMsg: ErrMsgNotLoggedIn,
			})
			return
		}

		if !user.IsAdmin {
			logger.InfoF(ctx, "[AdminRequired] non-admin access: %d %s", user.ID, user.Username)
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				ErrorMsg: "admin privileges required",
			})
			return
		}

		c.Next()
	}
}

// SetUserToContext stores the authenticated user on the gin context.
func SetUserToContext(c *gin.Context, user *User) {
	c.Set(ContextKeyUser, user)
}

// GetUserFromContext returns the authenticated user, or nil.
func GetUserFromContext(c *gin.Context) *User {
	value, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil
	}
	user, ok := value.(*User)
	if !ok {
		return nil
	}
	return user
}
