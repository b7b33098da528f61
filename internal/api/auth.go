package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// User is the identity the registry reports for a token.
type User struct {
	Email     string `json:"email" yaml:"email"`
	Role      string `json:"role" yaml:"role"`
	FullName  string `json:"full_name" yaml:"full_name"`
	Market    string `json:"market,omitempty" yaml:"market,omitempty"`
	LastLogin string `json:"last_login,omitempty" yaml:"last_login,omitempty"`
}

// LoginResult is a successful login.
type LoginResult struct {
	AccessToken string
	TokenType   string
	User        User
}

// loginBody covers both token responses: the hierarchy backend nests the
// user, the flat backend flattens it into user_* fields.
type loginBody struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        *User  `json:"user"`
	UserEmail   string `json:"user_email"`
	UserRole    string `json:"user_role"`
	FullName    string `json:"full_name"`
}

func (b loginBody) result() *LoginResult {
	res := &LoginResult{AccessToken: b.AccessToken, TokenType: b.TokenType}
	if b.User != nil {
		res.User = *b.User
	} else {
		res.User = User{Email: b.UserEmail, Role: b.UserRole, FullName: b.FullName}
	}
	return res
}

// meBody accepts either user shape from /auth/me.
type meBody struct {
	User
	UserEmail string `json:"user_email"`
	UserRole  string `json:"user_role"`
}

// Login exchanges credentials for a token. The request never carries an
// existing session.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	r := request{
		method:    http.MethodPost,
		path:      c.profile.LoginPath(),
		anonymous: true,
	}

	if c.profile == ProfileFlat {
		body, err := jsonBody(map[string]string{"email": email, "password": password})
		if err != nil {
			return nil, err
		}
		r.body = body
		r.contentType = "application/json"
	} else {
		form := url.Values{}
		form.Set("username", email)
		form.Set("password", password)
		r.body = strings.NewReader(form.Encode())
		r.contentType = "application/x-www-form-urlencoded"
	}

	resp, err := c.doRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	var body loginBody
	if err := parseResponse(resp, &body); err != nil {
		return nil, err
	}
	return body.result(), nil
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	resp, err := c.doRequest(ctx, request{method: http.MethodGet, path: "/auth/me"})
	if err != nil {
		return nil, err
	}

	var body meBody
	if err := parseResponse(resp, &body); err != nil {
		return nil, err
	}
	u := body.User
	if u.Email == "" {
		u.Email = body.UserEmail
	}
	if u.Role == "" {
		u.Role = body.UserRole
	}
	return &u, nil
}
