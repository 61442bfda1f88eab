package gov

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/govbatch/govbatch/internal/core"
)

// FoundUser is one resolved user from a search batch.
type FoundUser struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Login     string `json:"login,omitempty"`
	Status    string `json:"status,omitempty"`
}

// SearchReport splits a search batch into found / not-found / errored.
type SearchReport struct {
	Found    []FoundUser        `json:"found"`
	NotFound []UserSearch       `json:"not_found"`
	Errors   []core.TaskFailure `json:"errors"`
}

// BuildSearchReport interprets the outcomes of a user-search batch.
func BuildSearchReport(outcomes []core.TaskOutcome) SearchReport {
	report := SearchReport{}

	for _, item := range outcomes {
		attribute, value := splitTaskID(item.TaskID)

		if item.Outcome.Status != core.StatusSuccess {
			report.Errors = append(report.Errors, core.TaskFailure{
				TaskID:  item.TaskID,
				Kind:    item.Outcome.Kind,
				Message: item.Outcome.Message,
			})
			continue
		}

		var users []struct {
			ID      string `json:"id"`
			Status  string `json:"status"`
			Profile struct {
				Email string `json:"email"`
				Login string `json:"login"`
			} `json:"profile"`
		}
		if err := json.Unmarshal(item.Outcome.Result, &users); err != nil || len(users) == 0 {
			report.NotFound = append(report.NotFound, UserSearch{Attribute: attribute, Value: value})
			continue
		}

		user := users[0]
		report.Found = append(report.Found, FoundUser{
			Attribute: attribute,
			Value:     value,
			UserID:    user.ID,
			Email:     user.Profile.Email,
			Login:     user.Profile.Login,
			Status:    user.Status,
		})
	}

	return report
}

// AssignReport splits an assignment batch into assigned /
// already-assigned / failed.
type AssignReport struct {
	AppID           string             `json:"app_id"`
	Assigned        []string           `json:"assigned"`
	AlreadyAssigned []string           `json:"already_assigned"`
	Failed          []core.TaskFailure `json:"failed"`
}

// BuildAssignReport interprets the outcomes of an assignment batch. A
// 409 conflict means the user was already assigned and is not a
// failure; the core reports it as a client error and this layer
// reinterprets it, keeping the engine free of resource-model knowledge.
func BuildAssignReport(appID string, outcomes []core.TaskOutcome) AssignReport {
	report := AssignReport{AppID: appID}

	for _, item := range outcomes {
		switch {
		case item.Outcome.Status == core.StatusSuccess:
			report.Assigned = append(report.Assigned, item.TaskID)
		case item.Outcome.Kind == core.FailureClient && item.Outcome.StatusCode == http.StatusConflict:
			report.AlreadyAssigned = append(report.AlreadyAssigned, item.TaskID)
		default:
			report.Failed = append(report.Failed, core.TaskFailure{
				TaskID:  item.TaskID,
				Kind:    item.Outcome.Kind,
				Message: item.Outcome.Message,
			})
		}
	}

	return report
}

// CreatedGrant is one successfully created access grant.
type CreatedGrant struct {
	UserID  string `json:"user_id"`
	GrantID string `json:"grant_id"`
	Status  string `json:"status"`
}

// GrantReport splits a grant-creation batch into created / failed. A
// grant that came back 2xx but without an id is a failure: the remote
// contract requires every created grant to carry one.
type GrantReport struct {
	Created []CreatedGrant     `json:"created"`
	Failed  []core.TaskFailure `json:"failed"`
}

// GrantStatusActive is the status a healthy created grant reports.
const GrantStatusActive = "ACTIVE"

// BuildGrantReport interprets the outcomes of a grant-creation batch.
func BuildGrantReport(outcomes []core.TaskOutcome) GrantReport {
	report := GrantReport{}

	for _, item := range outcomes {
		userID, _ := splitTaskID(item.TaskID)

		if item.Outcome.Status != core.StatusSuccess {
			report.Failed = append(report.Failed, core.TaskFailure{
				TaskID:  item.TaskID,
				Kind:    item.Outcome.Kind,
				Message: item.Outcome.Message,
			})
			continue
		}

		var grant struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(item.Outcome.Result, &grant); err != nil || grant.ID == "" {
			report.Failed = append(report.Failed, core.TaskFailure{
				TaskID:  item.TaskID,
				Kind:    core.FailureServer,
				Message: "grant created but no id returned",
			})
			continue
		}

		report.Created = append(report.Created, CreatedGrant{
			UserID:  userID,
			GrantID: grant.ID,
			Status:  grant.Status,
		})
	}

	return report
}

// splitTaskID recovers the two halves of a "<left>:<right>" task id.
func splitTaskID(id string) (string, string) {
	left, right, ok := strings.Cut(id, ":")
	if !ok {
		return id, ""
	}
	return left, right
}
