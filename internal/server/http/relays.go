package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/server/services"
	"github.com/gin-gonic/gin"
)

// bindJSON decodes the request body into v. An empty body leaves v as is.
func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	return nil
}

// relayAccess authorizes "relayName:x;githubKey:y" against the relay's
// repository.
func (s *HTTPServer) relayAccess(c *gin.Context, extra ...string) (map[string]string, bool) {
	creds, err := requireCredentials(c.GetHeader(common.AuthorizationHeaderName),
		append([]string{credRelayName, credGitHubKey}, extra...)...)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	if _, err := s.svc.Permissions.CanAccessRelay(c.Request.Context(), creds[credGitHubKey], creds[credRelayName]); err != nil {
		s.fail(c, err)
		return nil, false
	}
	return creds, true
}

func (s *HTTPServer) createRelay(c *gin.Context) {
	ctx := c.Request.Context()
	creds, err := requireCredentials(c.GetHeader(common.AuthorizationHeaderName), credGitHubKey)
	if err != nil {
		s.fail(c, err)
		return
	}
	login, err := s.svc.Permissions.CanCreateRelay(ctx, creds[credGitHubKey])
	if err != nil {
		s.fail(c, err)
		return
	}

	var p services.CreateRelayParams
	if err := bindJSON(c, &p); err != nil {
		s.fail(c, err)
		return
	}

	relay, err := s.svc.Relays.Create(ctx, p)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info(ctx, "relay created via API", "relay", relay.RelayName, "by", login)
	c.JSON(http.StatusOK, relay)
}

func (s *HTTPServer) getRelay(c *gin.Context) {
	creds, ok := s.relayAccess(c)
	if !ok {
		return
	}
	relay, err := s.svc.Relays.Get(c.Request.Context(), creds[credRelayName])
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, relay)
}

func (s *HTTPServer) modifyRelay(c *gin.Context) {
	creds, ok := s.relayAccess(c)
	if !ok {
		return
	}
	var p services.UpdateRelayParams
	if err := bindJSON(c, &p); err != nil {
		s.fail(c, err)
		return
	}
	p.RelayName = creds[credRelayName]

	relay, err := s.svc.Relays.Update(c.Request.Context(), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, relay)
}

func (s *HTTPServer) deleteRelay(c *gin.Context) {
	creds, ok := s.relayAccess(c)
	if !ok {
		return
	}
	name := creds[credRelayName]
	if err := s.svc.Relays.Delete(c.Request.Context(), name, true); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

func (s *HTTPServer) addRepository(c *gin.Context) {
	ctx := c.Request.Context()
	creds, err := requireCredentials(c.GetHeader(common.AuthorizationHeaderName), credRepository, credGitHubKey)
	if err != nil {
		s.fail(c, err)
		return
	}
	if _, err := s.svc.Permissions.CanCreateRelay(ctx, creds[credGitHubKey]); err != nil {
		s.fail(c, err)
		return
	}
	created, err := s.svc.Repositories.EnsureRepository(ctx, creds[credRepository])
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"repository": creds[credRepository], "created": created})
}
