package services

import (
	"fmt"
	"path"

	"github.com/dmitrijs2005/exius/internal/bytesize"
	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/server/models"
)

// Ticket identifies one admitted file and how admission changed the ledger,
// so the change can be undone if the file is rejected later.
type Ticket struct {
	Endpoint string
	Name     string
	created  bool
}

// Admission checks the files of one upload request against a working copy
// of a subject key's upload state. It is not safe for concurrent use.
//
// Every rejection is kept in a ledger keyed by file name; only the first
// reason for a name is kept. A rejected file never leaves a trace in the
// working state. A name repeated within one request is an update of the
// copy admitted before it.
type Admission struct {
	state    models.UploadState
	rejected map[string]string
}

// NewAdmission starts an admission over a copy of state.
func NewAdmission(state models.UploadState) *Admission {
	st := state.Clone()
	if st == nil {
		st = models.UploadState{}
	}
	for _, ep := range st {
		if ep.Files == nil {
			ep.Files = map[string]*models.FileRecord{}
		}
	}
	return &Admission{
		state:    st,
		rejected: map[string]string{},
	}
}

// Admit runs the count, update and extension checks for name on endpoint
// and, when they pass, records the file in the working state.
func (a *Admission) Admit(endpoint, name string) (*Ticket, error) {
	ep, ok := a.state[endpoint]
	if !ok {
		return nil, a.reject(name, fmt.Errorf("%w: %s", common.ErrUnknownEndpoint, endpoint))
	}

	rec, exists := ep.Files[name]
	if !exists {
		if len(ep.Files)+1 > ep.Scope.MaxFiles {
			return nil, a.reject(name, fmt.Errorf("%w: more files uploaded to endpoint %s than the %d slot(s) provisioned",
				common.ErrEndpointFull, endpoint, ep.Scope.MaxFiles))
		}
	} else if rec.UpdateCount+1 > ep.Scope.MaxFileUpdates {
		return nil, a.reject(name, fmt.Errorf("%w: %s was already updated %d time(s)",
			common.ErrUpdateLimitExceeded, name, rec.UpdateCount))
	}

	if ext := path.Ext(name); !ep.Scope.AllowsExtension(ext) {
		return nil, a.reject(name, fmt.Errorf("%w: %q is not one of %v on endpoint %s",
			common.ErrDisallowedExtension, ext, ep.Scope.FileTypes, endpoint))
	}

	if exists {
		rec.UpdateCount++
	} else {
		ep.Files[name] = &models.FileRecord{}
	}
	return &Ticket{Endpoint: endpoint, Name: name, created: !exists}, nil
}

// CheckSize rejects t when size is over its endpoint's maxFileSize. An
// unparseable limit rejects the file as well.
func (a *Admission) CheckSize(t *Ticket, size int64) error {
	limit, err := bytesize.Parse(a.state[t.Endpoint].Scope.MaxFileSize)
	if err != nil {
		return a.Revoke(t, fmt.Errorf("%w: endpoint %s: %v", common.ErrSizeExceeded, t.Endpoint, err))
	}
	if size > limit {
		return a.Revoke(t, fmt.Errorf("%w: %s is %s, endpoint %s allows %s",
			common.ErrSizeExceeded, t.Name, bytesize.Format(size), t.Endpoint, bytesize.Format(limit)))
	}
	return nil
}

// Revoke undoes the ledger change made when t was admitted and records
// reason. It returns reason.
//
// When a later copy of the same name was admitted as an update, revoking
// the creating copy hands creation over to it: the update is taken back
// and the record stays. A record left with no stored file and no updates
// is dropped.
func (a *Admission) Revoke(t *Ticket, reason error) error {
	if ep, ok := a.state[t.Endpoint]; ok {
		if rec, ok := ep.Files[t.Name]; ok {
			switch {
			case rec.UpdateCount > 0:
				rec.UpdateCount--
			case t.created || rec.FileID == "":
				delete(ep.Files, t.Name)
			}
		}
	}
	return a.reject(t.Name, reason)
}

// Record returns the working ledger entry for an admitted file.
func (a *Admission) Record(t *Ticket) *models.FileRecord {
	return a.state[t.Endpoint].Files[t.Name]
}

// Scope returns the scope of endpoint in the working state.
func (a *Admission) Scope(endpoint string) (models.EndpointScope, bool) {
	ep, ok := a.state[endpoint]
	if !ok {
		return models.EndpointScope{}, false
	}
	return ep.Scope, true
}

// IntakeLimit is the largest maxFileSize over all endpoints. The transport
// uses it to bound how much of any single part it reads.
func (a *Admission) IntakeLimit() int64 {
	var limit int64
	for _, ep := range a.state {
		n, err := bytesize.Parse(ep.Scope.MaxFileSize)
		if err != nil {
			continue
		}
		if n > limit {
			limit = n
		}
	}
	return limit
}

// State returns the working upload state.
func (a *Admission) State() models.UploadState {
	return a.state
}

// Rejected returns the reject ledger: file name to human-readable reason.
func (a *Admission) Rejected() map[string]string {
	return a.rejected
}

func (a *Admission) reject(name string, err error) error {
	if _, ok := a.rejected[name]; !ok {
		a.rejected[name] = err.Error()
	}
	return err
}
