package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"cordctl/internal/apierr"
)

// tokenRequestTimeout bounds each token endpoint request.
const tokenRequestTimeout = 10 * time.Second

// tokenClient talks to the OAuth token endpoint. Both grants use
// form-encoded requests authenticated with the client id and secret.
type tokenClient struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func newTokenClient(endpoint, clientID, clientSecret string) *tokenClient {
	return &tokenClient{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: tokenRequestTimeout},
	}
}

// ExchangeCode redeems an authorization code for tokens, completing the PKCE
// flow with the original code verifier.
func (c *tokenClient) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*oauth2.Token, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {codeVerifier},
	}
	return c.do(ctx, form)
}

// Refresh obtains a new token pair from a refresh token.
func (c *tokenClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.do(ctx, form)
}

func (c *tokenClient) do(ctx context.Context, form url.Values) (*oauth2.Token, error) {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.FromTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apierr.FromTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.Classify(resp.StatusCode, body, resp.Header)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token response contained no access token")
	}

	tok := &oauth2.Token{
		AccessToken:  payload.AccessToken,
		TokenType:    payload.TokenType,
		RefreshToken: payload.RefreshToken,
	}
	if payload.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	if payload.Scope != "" {
		tok = tok.WithExtra(map[string]interface{}{"scope": payload.Scope})
	}
	return tok, nil
}
