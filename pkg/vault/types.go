// Package vault is the boundary to the tokenization vault's insert endpoint.
package vault

import (
	"fmt"
	"strings"
)

const insertPath = "/v2/records/insert"

// InsertRequest is the body of one POST to the insert endpoint.
type InsertRequest struct {
	VaultID   string         `json:"vaultID"`
	TableName string         `json:"tableName"`
	Records   []InsertRecord `json:"records"`
	Upsert    *Upsert        `json:"upsert,omitempty"`
}

// InsertRecord wraps one input record; Data is passed through unmodified.
type InsertRecord struct {
	Data map[string]any `json:"data"`
}

type Upsert struct {
	UpdateType    string   `json:"updateType,omitempty"` // UPDATE | REPLACE
	UniqueColumns []string `json:"uniqueColumns"`
}

// InsertResponse is a 2xx response body. Records line up with the request's
// records when the vault accepts all of them.
type InsertResponse struct {
	Records []RecordOutcome `json:"records"`
}

// RecordOutcome is the vault's verdict on one record. An empty SkyflowID means
// the record failed inside an otherwise successful batch.
type RecordOutcome struct {
	SkyflowID  string         `json:"skyflowID,omitempty"`
	Tokens     map[string]any `json:"tokens,omitempty"` // column -> [{"token": ...}, ...]
	Data       map[string]any `json:"data,omitempty"`
	HashedData map[string]any `json:"hashedData,omitempty"`
	Error      string         `json:"error,omitempty"`
	HTTPCode   int            `json:"httpCode,omitempty"`
}

// APIError is a non-2xx answer from the insert endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("vault insert: status %d: %s", e.StatusCode, body)
}
