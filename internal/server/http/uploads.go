package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/server/auth"
	"github.com/dmitrijs2005/exius/internal/server/services"
	"github.com/gin-gonic/gin"
)

// uploadCredentials accepts "relayName:x;subjectKey:y" or a bearer upload
// token.
func (s *HTTPServer) uploadCredentials(header string) (string, string, error) {
	if token, ok := strings.CutPrefix(header, bearerPrefix); ok {
		return auth.ParseUploadToken(strings.TrimSpace(token), s.secret)
	}
	creds, err := requireCredentials(header, credRelayName, credSubjectKey)
	if err != nil {
		return "", "", err
	}
	return creds[credRelayName], creds[credSubjectKey], nil
}

// upload streams the multipart body. Each file part is read up to the
// session's intake limit plus one byte, so an oversized part is still seen
// as oversized by the size check without being held in full.
func (s *HTTPServer) upload(c *gin.Context) {
	ctx := c.Request.Context()

	relayName, key, err := s.uploadCredentials(c.GetHeader(common.AuthorizationHeaderName))
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	session, err := s.svc.Uploads.Begin(ctx, relayName, key)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			s.fail(c, err)
			return
		}
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	mr, err := c.Request.MultipartReader()
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %v", common.ErrorValidation, err))
		return
	}

	limit := session.IntakeLimit()
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.fail(c, fmt.Errorf("%w: %v", common.ErrorValidation, err))
			return
		}
		if part.FileName() == "" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, limit+1))
		_ = part.Close()
		if err != nil {
			s.fail(c, fmt.Errorf("%w: %v", common.ErrorValidation, err))
			return
		}
		session.Add(services.IncomingFile{
			Endpoint: part.FormName(),
			Name:     part.FileName(),
			Size:     int64(len(data)),
			Body:     bytes.NewReader(data),
		})
	}

	result, err := s.svc.Uploads.Commit(ctx, session)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
