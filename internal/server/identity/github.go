package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/google/go-github/v66/github"
)

// GitHubConfig configures GitHub. BaseURL is empty for github.com.
type GitHubConfig struct {
	AdminToken string
	Org        string
	BaseURL    string
	HTTPClient *http.Client
}

// GitHub implements Provider with the GitHub REST API. Caller tokens are
// only used to resolve the caller; every other lookup uses the admin token.
type GitHub struct {
	httpClient *http.Client
	baseURL    *url.URL
	admin      *github.Client
	org        string
}

func NewGitHub(c GitHubConfig) (*GitHub, error) {
	g := &GitHub{httpClient: c.HTTPClient, org: c.Org}
	if c.BaseURL != "" {
		base := c.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		g.baseURL = u
	}
	g.admin = g.client(c.AdminToken)
	return g, nil
}

func (g *GitHub) client(token string) *github.Client {
	c := github.NewClient(g.httpClient)
	if token != "" {
		c = c.WithAuthToken(token)
	}
	if g.baseURL != nil {
		c.BaseURL = g.baseURL
	}
	return c
}

func isStatus(err error, code int) bool {
	var e *github.ErrorResponse
	return errors.As(err, &e) && e.Response != nil && e.Response.StatusCode == code
}

func (g *GitHub) ResolveIdentity(ctx context.Context, userToken string) (string, error) {
	if userToken == "" {
		return "", common.ErrorUnauthorized
	}
	user, _, err := g.client(userToken).Users.Get(ctx, "")
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) || isStatus(err, http.StatusForbidden) {
			return "", common.ErrorUnauthorized
		}
		return "", fmt.Errorf("resolve identity: %w", err)
	}
	if user.GetLogin() == "" {
		return "", common.ErrorUnauthorized
	}
	return user.GetLogin(), nil
}

func (g *GitHub) OrgMembership(ctx context.Context, login string) (string, error) {
	m, _, err := g.admin.Organizations.GetOrgMembership(ctx, login, g.org)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("org membership: %w", err)
	}
	if m.GetState() != "" && m.GetState() != "active" {
		return "", nil
	}
	return m.GetRole(), nil
}

func (g *GitHub) RepositoryPermission(ctx context.Context, login, repo string) (string, error) {
	level, _, err := g.admin.Repositories.GetPermissionLevel(ctx, g.org, repo, login)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return PermissionNone, nil
		}
		return "", fmt.Errorf("repository permission: %w", err)
	}
	return level.GetPermission(), nil
}

func (g *GitHub) EnsureRepository(ctx context.Context, repo string) (bool, error) {
	_, _, err := g.admin.Repositories.Get(ctx, g.org, repo)
	if err == nil {
		return false, nil
	}
	if !isStatus(err, http.StatusNotFound) {
		return false, fmt.Errorf("get repository: %w", err)
	}

	created, _, err := g.admin.Repositories.Create(ctx, g.org, &github.Repository{
		Name:     github.String(repo),
		AutoInit: github.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("create repository: %w", err)
	}

	branch := created.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}
	_, _, err = g.admin.Repositories.EnablePages(ctx, g.org, repo, &github.Pages{
		Source: &github.PagesSource{Branch: github.String(branch), Path: github.String("/")},
	})
	if err != nil {
		return true, fmt.Errorf("enable pages: %w", err)
	}
	return true, nil
}
