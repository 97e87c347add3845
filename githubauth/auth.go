/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubauth builds authenticated GitHub clients from either a
// personal access token or a GitHub App installation key.
package githubauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// Credentials carries one of the supported authentication modes. A token
// takes precedence when both are set.
type Credentials struct {
	// Token is a personal access token.
	Token string

	// App installation authentication.
	AppID             int64
	AppInstallationID int64
	AppPrivateKeyPath string
}

// Clients bundles the REST client, the GraphQL client, and a token source
// usable for git-over-HTTP.
type Clients struct {
	REST        *github.Client
	GraphQL     *githubv4.Client
	TokenSource oauth2.TokenSource
}

// New constructs authenticated clients from the credentials.
func New(ctx context.Context, creds Credentials) (*Clients, error) {
	ts, err := tokenSource(ctx, creds)
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, ts)
	return &Clients{
		REST:        github.NewClient(httpClient),
		GraphQL:     githubv4.NewClient(httpClient),
		TokenSource: ts,
	}, nil
}

func tokenSource(ctx context.Context, creds Credentials) (oauth2.TokenSource, error) {
	if creds.Token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token}), nil
	}

	switch {
	case creds.AppID == 0:
		return nil, errors.New("either a token or app credentials are required")
	case creds.AppInstallationID == 0:
		return nil, errors.New("app installation ID is required")
	case creds.AppPrivateKeyPath == "":
		return nil, errors.New("app private key path is required")
	}

	itr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, creds.AppID, creds.AppInstallationID, creds.AppPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("creating app installation transport: %w", err)
	}
	return oauth2.ReuseTokenSource(nil, &installationTokenSource{ctx: ctx, transport: itr}), nil
}

// installationTokenSource adapts a ghinstallation transport to
// oauth2.TokenSource so git-over-HTTP and the API clients share one
// credential path.
type installationTokenSource struct {
	ctx       context.Context
	transport *ghinstallation.Transport
}

func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.transport.Token(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("minting installation token: %w", err)
	}
	return &oauth2.Token{AccessToken: token}, nil
}
