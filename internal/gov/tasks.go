package gov

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/govbatch/govbatch/internal/core"
)

// UserSearch identifies one user by a profile attribute.
type UserSearch struct {
	Attribute string `json:"attribute" yaml:"attribute"`
	Value     string `json:"value" yaml:"value"`
}

// GrantSpec is one access-grant creation request: the target user plus
// the grant body posted verbatim to the governance endpoint.
type GrantSpec struct {
	UserID string          `json:"userId" yaml:"userId"`
	Body   json.RawMessage `json:"grantBody" yaml:"grantBody"`
}

// SearchUserTasks builds one lookup task per search. Searches with an
// empty value are skipped; an empty attribute defaults to email.
func SearchUserTasks(searches []UserSearch) ([]core.Task, error) {
	tasks := make([]core.Task, 0, len(searches))
	for _, search := range searches {
		value := strings.TrimSpace(search.Value)
		if value == "" {
			continue
		}
		attribute := strings.TrimSpace(search.Attribute)
		if attribute == "" {
			attribute = "email"
		}

		query := fmt.Sprintf("profile.%s eq %q", attribute, value)
		tasks = append(tasks, core.Task{
			ID: attribute + ":" + value,
			Op: core.Operation{
				Method: http.MethodGet,
				Path:   "/api/v1/users?search=" + url.QueryEscape(query),
			},
		})
	}
	if len(tasks) == 0 {
		return nil, errors.New("no valid user searches")
	}
	return tasks, nil
}

// AssignUserTasks builds one application-assignment task per user id.
func AssignUserTasks(appID string, userIDs []string) ([]core.Task, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, errors.New("application id is required")
	}

	tasks := make([]core.Task, 0, len(userIDs))
	for _, userID := range userIDs {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		payload, err := json.Marshal(map[string]string{"id": userID})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, core.Task{
			ID:      userID,
			Op:      core.Operation{Method: http.MethodPost, Path: "/api/v1/apps/" + url.PathEscape(appID) + "/users"},
			Payload: payload,
		})
	}
	if len(tasks) == 0 {
		return nil, errors.New("no user ids to assign")
	}
	return tasks, nil
}

// CreateGrantTasks builds one grant-creation task per spec. Specs
// missing a user id or body are skipped, matching the lenient intake of
// the surrounding workflow tooling.
func CreateGrantTasks(grants []GrantSpec) ([]core.Task, error) {
	tasks := make([]core.Task, 0, len(grants))
	for i, grant := range grants {
		userID := strings.TrimSpace(grant.UserID)
		if userID == "" || len(grant.Body) == 0 {
			continue
		}
		tasks = append(tasks, core.Task{
			ID:      fmt.Sprintf("%s:%d", userID, i),
			Op:      core.Operation{Method: http.MethodPost, Path: "/governance/api/v1/grants"},
			Payload: grant.Body,
		})
	}
	if len(tasks) == 0 {
		return nil, errors.New("no valid grants to create")
	}
	return tasks, nil
}
