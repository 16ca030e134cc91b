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

package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kissanima/craftd/internal/apps/auth"
	"github.com/kissanima/craftd/internal/db"
	"github.com/kissanima/craftd/internal/logger"
	"github.com/kissanima/craftd/internal/session"
)

// GetLoginURL returns the provider authorization URL for the frontend to
// redirect to. The state token is cached server-side and verified on callback.
func GetLoginURL(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			URL string `json:"url"`
		} `json:"data"`
	}

	provider := Provider(c.Param("provider"))
	conf, err := GetProvider(provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: err.Error()})
		return
	}

	state := fmt.Sprintf("%s:%s", provider, uuid.NewString())
	cacheKey := fmt.Sprintf(StateCacheKeyFormat, state)
	if err := session.Store.Set(c.Request.Context(), cacheKey, "1", StateCacheKeyExpiration); err != nil {
		logger.ErrorF(c.Request.Context(), "[OAuth] failed to cache state: %v", err)
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: "failed to create login state"})
		return
	}

	url := conf.AuthCodeURL(state)
	c.JSON(http.StatusOK, response{
		Data: &struct {
			URL string `json:"url"`
		}{URL: url},
	})
}

// Callback completes the OAuth flow: verifies state, exchanges the code,
// fetches the provider identity and binds the session.
func Callback(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			User *auth.UserInfo `json:"user"`
		} `json:"data"`
	}

	ctx := c.Request.Context()
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: "missing state or code"})
		return
	}

	// State must exist in the cache and is consumed on first use.
	cacheKey := fmt.Sprintf(StateCacheKeyFormat, state)
	if _, err := session.Store.Get(ctx, cacheKey); err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: ErrInvalidState.Error()})
		return
	}
	if err := session.Store.Delete(ctx, cacheKey); err != nil {
		logger.WarnF(ctx, "[OAuth] failed to delete state: %v", err)
	}

	providerName, _, found := strings.Cut(state, ":")
	if !found {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: ErrInvalidState.Error()})
		return
	}
	provider := Provider(providerName)

	conf, err := GetProvider(provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, response{ErrorMsg: err.Error()})
		return
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		logger.ErrorF(ctx, "[OAuth] code exchange failed for %s: %v", provider, err)
		c.JSON(http.StatusUnauthorized, response{ErrorMsg: "authorization code exchange failed"})
		return
	}

	userInfo, err := FetchUserInfo(ctx, provider, token)
	if err != nil {
		logger.ErrorF(ctx, "[OAuth] fetch user info failed for %s: %v", provider, err)
		c.JSON(http.StatusBadGateway, response{ErrorMsg: "failed to fetch user info from provider"})
		return
	}

	user, err := findOrCreateOAuthUser(ctx, userInfo)
	if err != nil {
		logger.ErrorF(ctx, "[OAuth] find or create user failed: %v", err)
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: "failed to resolve local account"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, response{ErrorMsg: auth.ErrMsgUserInactive})
		return
	}

	now := time.Now()
	user.LastLoginAt = now
	if err := db.DB(ctx).Model(user).Update("last_login_at", now).Error; err != nil {
		logger.WarnF(ctx, "[OAuth] failed to update last login time: %v", err)
	}

	sess := sessions.Default(c)
	sess.Set(auth.SessionKeyUserID, user.ID)
	sess.Set(auth.SessionKeyUsername, user.Username)
	if err := sess.Save(); err != nil {
		logger.ErrorF(ctx, "[OAuth] failed to save session: %v", err)
		c.JSON(http.StatusInternalServerError, response{ErrorMsg: "failed to save session"})
		return
	}

	logger.InfoF(ctx, "[OAuth] user %s logged in via %s", user.Username, provider)
	info := user.ToUserInfo()
	c.JSON(http.StatusOK, response{
		Data: &struct {
			User *auth.UserInfo `json:"user"`
		}{User: info},
	})
}

// findOrCreateOAuthUser binds a provider identity to a local account. The
// oauth_id column holds "provider:id" so identities never collide across
// providers.
func findOrCreateOAuthUser(ctx context.Context, info *UserInfo) (*auth.User, error) {
	oauthID := fmt.Sprintf("%s:%s", info.Provider, info.ID)
	gdb := db.DB(ctx)

	var user auth.User
	err := gdb.Where("oauth_id = ?", oauthID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	// A local account with the same username gets linked rather than shadowed.
	err = gdb.Where("username = ?", info.Username).First(&user).Error
	if err == nil {
		user.OAuthID = oauthID
		if user.AvatarURL == "" {
			user.AvatarURL = info.AvatarURL
		}
		if err := gdb.Save(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	nickname := info.Name
	if nickname == "" {
		nickname = info.Username
	}
	user = auth.User{
		Username:  info.Username,
		Nickname:  nickname,
		OAuthID:   oauthID,
		AvatarURL: info.AvatarURL,
		IsActive:  true,
	}
	if err := gdb.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetEnabledProvidersHandler lists providers the frontend may offer.
func GetEnabledProvidersHandler(c *gin.Context) {
	type response struct {
		ErrorMsg string `json:"error_msg"`
		Data     *struct {
			Providers []string `json:"providers"`
		} `json:"data"`
	}

	providers := EnabledProviders()
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, string(p))
	}

	c.JSON(http.StatusOK, response{
		Data: &struct {
			Providers []string `json:"providers"`
		}{Providers: names},
	})
}
