package models

import "time"

// FileRecord tracks one file name accepted on an endpoint.
type FileRecord struct {
	UpdateCount int    `json:"updateCount"`
	FileID      string `json:"fileId,omitempty"`
}

// EndpointState is the per-endpoint part of a subject key's ledger.
type EndpointState struct {
	Scope EndpointScope          `json:"scope"`
	Files map[string]*FileRecord `json:"files"`
}

// UploadState maps endpoint names to their ledger state.
type UploadState map[string]*EndpointState

// Clone returns a deep copy so a request can mutate its working copy
// without touching the loaded record.
func (u UploadState) Clone() UploadState {
	if u == nil {
		return nil
	}
	out := make(UploadState, len(u))
	for name, st := range u {
		if st == nil {
			continue
		}
		scope := st.Scope
		scope.FileTypes = append([]string(nil), st.Scope.FileTypes...)
		files := make(map[string]*FileRecord, len(st.Files))
		for fn, rec := range st.Files {
			if rec == nil {
				continue
			}
			r := *rec
			files[fn] = &r
		}
		out[name] = &EndpointState{Scope: scope, Files: files}
	}
	return out
}

// SubjectKey is an ephemeral per-use upload grant issued against a relay.
type SubjectKey struct {
	SubjectKey  string      `json:"subjectKey"`
	UploadState UploadState `json:"uploadState"`
	RelayNumber int64       `json:"relayNumber"`
	MetaData    string      `json:"metaData"`
	CreatedAt   time.Time   `json:"createdAt"`
}
