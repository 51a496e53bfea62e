// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/dmitrijs2005/exius/internal/common"
)

// Endpoint scope defaults applied to every unset field.
const (
	DefaultEndpointName    = "data"
	DefaultFileType        = ".csv"
	DefaultMaxFileSize     = "1mb"
	DefaultMaxFiles        = 1
	DefaultMaxFileUpdates  = 1
	DefaultBoxRelativePath = "/data"
	DefaultBasePath        = "/"
	DefaultRelayCustomPath = "/"
	DefaultMaxRelayPulls   = 1
)

// EndpointScope is the named set of upload constraints for one write
// endpoint together with its resolved remote folder.
type EndpointScope struct {
	FileTypes       []string `json:"fileTypes" yaml:"fileTypes"`
	MaxFileSize     string   `json:"maxFileSize" yaml:"maxFileSize"`
	MaxFiles        int      `json:"maxFiles" yaml:"maxFiles"`
	MaxFileUpdates  int      `json:"maxFileUpdates" yaml:"maxFileUpdates"`
	BoxRelativePath string   `json:"boxRelativePath" yaml:"boxRelativePath"`
	// CustomPath is a template containing the literal tokens "subjectKey"
	// and "pullCount". It is consumed at issuance and never stored on a
	// subject key.
	CustomPath      string `json:"customPath,omitempty" yaml:"customPath,omitempty"`
	RemoteFolderID  string `json:"remoteFolderId,omitempty" yaml:"remoteFolderId,omitempty"`
	RemoteShareLink string `json:"remoteShareLink,omitempty" yaml:"remoteShareLink,omitempty"`
}

// WithDefaults returns a copy of s where zero-valued fields carry the
// defaults.
func (s EndpointScope) WithDefaults() EndpointScope {
	if len(s.FileTypes) == 0 {
		s.FileTypes = []string{DefaultFileType}
	} else {
		s.FileTypes = append([]string(nil), s.FileTypes...)
	}
	if s.MaxFileSize == "" {
		s.MaxFileSize = DefaultMaxFileSize
	}
	if s.MaxFiles == 0 {
		s.MaxFiles = DefaultMaxFiles
	}
	if s.MaxFileUpdates == 0 {
		s.MaxFileUpdates = DefaultMaxFileUpdates
	}
	if s.BoxRelativePath == "" {
		s.BoxRelativePath = DefaultBoxRelativePath
	}
	return s
}

// AllowsExtension reports whether ext (including the dot) is listed in
// FileTypes. The comparison is exact.
func (s EndpointScope) AllowsExtension(ext string) bool {
	for _, t := range s.FileTypes {
		if t == ext {
			return true
		}
	}
	return false
}

// WriteEndpoints maps tenant-chosen endpoint names to their scopes.
type WriteEndpoints map[string]EndpointScope

// WithDefaults applies scope defaults to every endpoint. A nil or empty map
// yields the single default endpoint "data".
func (w WriteEndpoints) WithDefaults() WriteEndpoints {
	if len(w) == 0 {
		return WriteEndpoints{DefaultEndpointName: EndpointScope{}.WithDefaults()}
	}
	out := make(WriteEndpoints, len(w))
	for name, scope := range w {
		out[name] = scope.WithDefaults()
	}
	return out
}

// BaseFolder locates the relay's base folder under a storage root.
type BaseFolder struct {
	Path            string `json:"path" yaml:"path"`
	RootID          string `json:"rootId" yaml:"rootId"`
	RemoteFolderID  string `json:"remoteFolderId,omitempty" yaml:"remoteFolderId,omitempty"`
	RemoteShareLink string `json:"remoteShareLink,omitempty" yaml:"remoteShareLink,omitempty"`
}

// WithDefaults fills the path and root id when unset.
func (b BaseFolder) WithDefaults() BaseFolder {
	if b.Path == "" {
		b.Path = DefaultBasePath
	}
	if b.RootID == "" {
		b.RootID = common.RootFolderID
	}
	return b
}

// Relay is a tenant's upload configuration and quota owner.
type Relay struct {
	RelayName         string         `json:"relayName"`
	Repository        string         `json:"repository"`
	Password          string         `json:"-"`
	WriteEndpoints    WriteEndpoints `json:"writeEndpoints"`
	BaseFolder        BaseFolder     `json:"baseFolder"`
	MaxRelayPulls     int64          `json:"maxRelayPulls"`
	CurrentRelayPulls int64          `json:"currentRelayPulls"`
	CustomPath        string         `json:"customPath"`
	MetaData          string         `json:"metaData"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// HasPassword reports whether issuing keys requires the shared secret.
func (r *Relay) HasPassword() bool {
	return r.Password != ""
}

// PullsLeft is the number of subject keys that may still be issued.
func (r *Relay) PullsLeft() int64 {
	if r.CurrentRelayPulls >= r.MaxRelayPulls {
		return 0
	}
	return r.MaxRelayPulls - r.CurrentRelayPulls
}
