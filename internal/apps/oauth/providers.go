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

// Package oauth adds optional GitHub and Google login on top of the local
// account system.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/kissanima/craftd/internal/config"
)

// Provider identifies an OAuth provider.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGoogle Provider = "google"
)

// State cache keys. State entries are single-use and short-lived.
const (
	StateCacheKeyFormat     = "craftd:oauth:state:%s"
	StateCacheKeyExpiration = 10 * time.Minute
)

// ErrInvalidState is returned when a callback presents an unknown state.
var ErrInvalidState = errors.New("oauth: invalid or expired state")

type providerManager struct {
	providers map[Provider]*oauth2.Config
}

var manager *providerManager

// InitProviders builds OAuth configs for every enabled provider.
func InitProviders() {
	manager = &providerManager{
		providers: make(map[Provider]*oauth2.Config),
	}

	githubConfig := config.Config.OAuth.GitHub
	if githubConfig.Enabled && githubConfig.ClientID != "" {
		manager.providers[ProviderGitHub] = &oauth2.Config{
			ClientID:     githubConfig.ClientID,
			ClientSecret: githubConfig.ClientSecret,
			RedirectURL:  githubConfig.RedirectURI,
			Scopes:       []string{"user:email", "read:user"},
			Endpoint:     github.Endpoint,
		}
	}

	googleConfig := config.Config.OAuth.Google
	if googleConfig.Enabled && googleConfig.ClientID != "" {
		manager.providers[ProviderGoogle] = &oauth2.Config{
			ClientID:     googleConfig.ClientID,
			ClientSecret: googleConfig.ClientSecret,
			RedirectURL:  googleConfig.RedirectURI,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}
	}
}

// GetProvider returns the OAuth config for provider.
func GetProvider(provider Provider) (*oauth2.Config, error) {
	if manager == nil {
		return nil, errors.New("oauth: providers not initialized")
	}

	conf, ok := manager.providers[provider]
	if !ok {
		return nil, fmt.Errorf("oauth: provider %q not configured or disabled", provider)
	}
	return conf, nil
}

// IsProviderEnabled reports whether provider is configured.
func IsProviderEnabled(provider Provider) bool {
	if manager == nil {
		return false
	}
	_, ok := manager.providers[provider]
	return ok
}

// EnabledProviders lists all configured providers.
func EnabledProviders() []Provider {
	if manager == nil {
		return nil
	}

	providers := make([]Provider, 0, len(manager.providers))
	for p := range manager.providers {
		providers = append(providers, p)
	}
	return providers
}

// UserInfo is the provider-independent identity shape.
type UserInfo struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Provider  string `json:"provider"`
}

// FetchUserInfo retrieves the identity behind token from the provider API.
func FetchUserInfo(ctx context.Context, provider Provider, token *oauth2.Token) (*UserInfo, error) {
	switch provider {
	case ProviderGitHub:
		return fetchGitHubUserInfo(ctx, token)
	case ProviderGoogle:
		return fetchGoogleUserInfo(ctx, token)
	default:
		return nil, fmt.Errorf("oauth: unsupported provider %q", provider)
	}
}

func fetchGitHubUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		return nil, fmt.Errorf("oauth: get GitHub user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("oauth: GitHub API error: %s", string(body))
	}

	var githubUser struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&githubUser); err != nil {
		return nil, fmt.Errorf("oauth: decode GitHub user info: %w", err)
	}

	return &UserInfo{
		ID:        fmt.Sprintf("%d", githubUser.ID),
		Username:  githubUser.Login,
		Email:     githubUser.Email,
		Name:      githubUser.Name,
		AvatarURL: githubUser.AvatarURL,
		Provider:  string(ProviderGitHub),
	}, nil
}

func fetchGoogleUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, fmt.Errorf("oauth: get Google user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("oauth: Google API error: %s", string(body))
	}

	var googleUser struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&googleUser); err != nil {
		return nil, fmt.Errorf("oauth: decode Google user info: %w", err)
	}

	// Google has no username; use the email local part.
	username := googleUser.Email
	if idx := strings.IndexByte(googleUser.Email, '@'); idx > 0 {
		username = googleUser.Email[:idx]
	}

	return &UserInfo{
		ID:        googleUser.ID,
		Username:  username,
		Email:     googleUser.Email,
		Name:      googleUser.Name,
		AvatarURL: googleUser.Picture,
		Provider:  string(ProviderGoogle),
	}, nil
}
