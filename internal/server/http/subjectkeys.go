package http

import (
	"net/http"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/server/auth"
	"github.com/dmitrijs2005/exius/internal/server/models"
	"github.com/dmitrijs2005/exius/internal/server/services"
	"github.com/gin-gonic/gin"
)

type createSubjectKeyRequest struct {
	MetaData string `json:"metaData"`
}

// IssuedKey is returned by createSubjectKey.
type IssuedKey struct {
	SubjectKey  string `json:"subjectKey"`
	RelayNumber int64  `json:"relayNumber"`
	UploadToken string `json:"uploadToken"`
}

type modifySubjectKeyRequest struct {
	MetaData    *string            `json:"metaData"`
	UploadState models.UploadState `json:"uploadState"`
}

func (s *HTTPServer) createSubjectKey(c *gin.Context) {
	ctx := c.Request.Context()
	creds, err := requireCredentials(c.GetHeader(common.AuthorizationHeaderName), credRelayName, credPassword)
	if err != nil {
		s.fail(c, err)
		return
	}
	relayName := creds[credRelayName]
	if err := s.svc.Permissions.CanIssueKey(ctx, relayName, creds[credPassword]); err != nil {
		s.fail(c, err)
		return
	}

	var req createSubjectKeyRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}

	key, err := s.svc.SubjectKeys.Issue(ctx, relayName, req.MetaData)
	if err != nil {
		s.fail(c, err)
		return
	}

	token, err := auth.GenerateUploadToken(relayName, key.SubjectKey, s.secret, s.validity)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, IssuedKey{SubjectKey: key.SubjectKey, RelayNumber: key.RelayNumber, UploadToken: token})
}

func (s *HTTPServer) getSubjectKey(c *gin.Context) {
	creds, ok := s.relayAccess(c, credSubjectKey)
	if !ok {
		return
	}
	key, err := s.svc.SubjectKeys.Get(c.Request.Context(), creds[credRelayName], creds[credSubjectKey])
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, key)
}

func (s *HTTPServer) listSubjectKeys(c *gin.Context) {
	creds, ok := s.relayAccess(c)
	if !ok {
		return
	}
	keys, err := s.svc.SubjectKeys.List(c.Request.Context(), creds[credRelayName])
	if err != nil {
		s.fail(c, err)
		return
	}
	if keys == nil {
		keys = []*models.SubjectKey{}
	}
	c.JSON(http.StatusOK, keys)
}

func (s *HTTPServer) modifySubjectKey(c *gin.Context) {
	creds, ok := s.relayAccess(c, credSubjectKey)
	if !ok {
		return
	}
	var req modifySubjectKeyRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	key, err := s.svc.SubjectKeys.Update(c.Request.Context(), services.UpdateSubjectKeyParams{
		RelayName:   creds[credRelayName],
		SubjectKey:  creds[credSubjectKey],
		MetaData:    req.MetaData,
		UploadState: req.UploadState,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, key)
}

func (s *HTTPServer) deleteSubjectKey(c *gin.Context) {
	creds, ok := s.relayAccess(c, credSubjectKey)
	if !ok {
		return
	}
	if err := s.svc.SubjectKeys.Delete(c.Request.Context(), creds[credRelayName], creds[credSubjectKey]); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": creds[credSubjectKey]})
}
