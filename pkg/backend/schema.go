package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/payback159/raidsplit/pkg/models"
)

// ParseError reports a backend response that does not match the expected shape
type ParseError struct {
	Endpoint string
	Field    string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("invalid response from ")
	b.WriteString(e.Endpoint)
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// StatusError reports a non-success answer from the backend
type StatusError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.Code)
}

func newStatusError(endpoint string, code int, body []byte) *StatusError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if json.Unmarshal(body, &payload) == nil {
		msg = payload.Error
		if msg == "" {
			msg = payload.Message
		}
	}
	return &StatusError{Endpoint: endpoint, Code: code, Message: msg}
}

func decodeBody(endpoint string, data []byte, out any) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return &ParseError{Endpoint: endpoint, Reason: "empty body"}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ParseError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// wireSplitResponse keeps success optional so a missing field is detected
type wireSplitResponse struct {
	Success *bool          `json:"success"`
	Groups  []models.Group `json:"groups"`
	Error   string         `json:"error"`
}

func parseSplitResponse(endpoint string, data []byte) (models.SplitResponse, error) {
	var wire wireSplitResponse
	if err := decodeBody(endpoint, data, &wire); err != nil {
		return models.SplitResponse{}, err
	}
	if wire.Success == nil {
		return models.SplitResponse{}, &ParseError{Endpoint: endpoint, Field: "success", Reason: "missing"}
	}

	resp := models.SplitResponse{Success: *wire.Success, Groups: wire.Groups, Error: wire.Error}
	if !resp.Success {
		return resp, nil
	}
	if wire.Groups == nil {
		return models.SplitResponse{}, &ParseError{Endpoint: endpoint, Field: "groups", Reason: "missing"}
	}
	if err := validateGroups(endpoint, resp.Groups); err != nil {
		return models.SplitResponse{}, err
	}
	return resp, nil
}

// validateGroups enforces the invariants the views rely on: positive,
// unique group ids and non-empty character names unique across the roster
func validateGroups(endpoint string, groups []models.Group) error {
	seenGroups := make(map[int]bool, len(groups))
	seenNames := make(map[string]int)

	for i, g := range groups {
		field := fmt.Sprintf("groups[%d]", i)
		if g.GroupID <= 0 {
			return &ParseError{Endpoint: endpoint, Field: field + ".group_id", Reason: fmt.Sprintf("must be positive, got %d", g.GroupID)}
		}
		if seenGroups[g.GroupID] {
			return &ParseError{Endpoint: endpoint, Field: field + ".group_id", Reason: fmt.Sprintf("duplicate id %d", g.GroupID)}
		}
		seenGroups[g.GroupID] = true

		for j, ch := range g.Characters {
			cfield := fmt.Sprintf("%s.characters[%d].name", field, j)
			if strings.TrimSpace(ch.Name) == "" {
				return &ParseError{Endpoint: endpoint, Field: cfield, Reason: "empty"}
			}
			if prev, ok := seenNames[ch.Name]; ok {
				return &ParseError{Endpoint: endpoint, Field: cfield,
					Reason: fmt.Sprintf("%q already assigned to group %d", ch.Name, prev)}
			}
			seenNames[ch.Name] = g.GroupID
		}
	}
	return nil
}

func validatePlayers(endpoint string, list models.PlayerList) error {
	for i, p := range list.Players {
		for j, ch := range p.Characters {
			if strings.TrimSpace(ch.Name) == "" {
				return &ParseError{Endpoint: endpoint,
					Field:  fmt.Sprintf("players[%d].characters[%d].name", i, j),
					Reason: "empty"}
			}
		}
	}
	return nil
}
