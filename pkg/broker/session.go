package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"
)

type tokenSet struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
}

// GenerateTOTP returns the current 6-digit code for a base32 secret.
func GenerateTOTP(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		return "", fmt.Errorf("totp: %w", err)
	}
	return code, nil
}

// Login authenticates with user/password and a TOTP code derived from
// totpSecret, and stores the returned tokens.
func (c *Client) Login(ctx context.Context, user, password, totpSecret string) error {
	code, err := GenerateTOTP(totpSecret, time.Now())
	if err != nil {
		return err
	}
	return c.GenerateSession(ctx, user, password, code)
}

// GenerateSession logs in with an already computed TOTP code.
func (c *Client) GenerateSession(ctx context.Context, user, password, code string) error {
	var ts tokenSet
	params := map[string]any{"userId": user, "password": password, "totp": code}
	if err := c.doRequest(ctx, http.MethodPost, "api.login", nil, params, &ts); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if ts.AccessToken == "" {
		return errors.New("login: response carries no access token")
	}
	c.setTokens(ts.AccessToken, ts.RefreshToken)
	c.mu.Lock()
	c.userID = user
	if ts.UserID != "" {
		c.userID = ts.UserID
	}
	c.mu.Unlock()
	log.Printf("[broker] session created for %s", c.UserID())
	return nil
}

// RenewAccessToken exchanges the refresh token for a new access token.
func (c *Client) RenewAccessToken(ctx context.Context) error {
	c.mu.RLock()
	refresh := c.refreshToken
	c.mu.RUnlock()
	if refresh == "" {
		return errors.New("renew: no refresh token")
	}
	var ts tokenSet
	if err := c.doRequest(ctx, http.MethodPost, "api.refresh", nil, map[string]any{"refreshToken": refresh}, &ts); err != nil {
		return fmt.Errorf("renew: %w", err)
	}
	c.setTokens(ts.AccessToken, ts.RefreshToken)
	return nil
}

// TerminateSession logs out and forgets the tokens.
func (c *Client) TerminateSession(ctx context.Context) error {
	err := c.doRequest(ctx, http.MethodPost, "api.logout", nil, map[string]any{"userId": c.UserID()}, nil)
	c.mu.Lock()
	c.accessToken, c.refreshToken = "", ""
	c.mu.Unlock()
	return err
}
