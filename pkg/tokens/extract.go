// Package tokens derives the events republished for each tokenized record.
package tokens

import (
	"fmt"

	"github.com/joeydtaylor/steeze-vault/pkg/vault"
)

// Event carries a record's vault identifier and the first token per column.
type Event struct {
	ID     string
	Tokens map[string]string
}

// Extract maps a response to events, one per outcome that carries an
// identifier, in response order. Outcomes without one are skipped.
func Extract(resp *vault.InsertResponse) []Event {
	if resp == nil {
		return nil
	}
	out := make([]Event, 0, len(resp.Records))
	for _, rec := range resp.Records {
		if rec.SkyflowID == "" {
			continue
		}
		ev := Event{ID: rec.SkyflowID, Tokens: make(map[string]string, len(rec.Tokens))}
		for col, v := range rec.Tokens {
			if tok, ok := firstToken(v); ok {
				ev.Tokens[col] = tok
			}
		}
		out = append(out, ev)
	}
	return out
}

// firstToken reads v[0]["token"]. Later token objects for the column are ignored.
func firstToken(v any) (string, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return "", false
	}
	obj, ok := list[0].(map[string]any)
	if !ok {
		return "", false
	}
	tok, ok := obj["token"]
	if !ok || tok == nil {
		return "", false
	}
	if s, ok := tok.(string); ok {
		return s, true
	}
	return fmt.Sprint(tok), true
}

// Payload is the message body for ev. The identifier is written last so a
// token column sharing its name cannot shadow it.
func (ev Event) Payload(idField string) map[string]string {
	m := make(map[string]string, len(ev.Tokens)+1)
	for col, tok := range ev.Tokens {
		m[col] = tok
	}
	m[idField] = ev.ID
	return m
}
