package gov

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/govbatch/govbatch/internal/core"
)

func TestBuildSearchReport(t *testing.T) {
	found := json.RawMessage(`[{"id":"00u1","status":"ACTIVE","profile":{"email":"ada@example.com","login":"ada"}}]`)

	report := BuildSearchReport([]core.TaskOutcome{
		{TaskID: "email:ada@example.com", Outcome: core.Outcome{Status: core.StatusSuccess, Result: found}},
		{TaskID: "email:nobody@example.com", Outcome: core.Outcome{Status: core.StatusSuccess, Result: json.RawMessage(`[]`)}},
		{TaskID: "email:broken@example.com", Outcome: core.Outcome{Status: core.StatusSuccess, Result: json.RawMessage(`not json`)}},
		{TaskID: "email:late@example.com", Outcome: core.Outcome{Status: core.StatusTimeout, Kind: core.FailureTimeout, Message: "task exceeded 30s timeout"}},
	})

	require.Len(t, report.Found, 1)
	require.Equal(t, "00u1", report.Found[0].UserID)
	require.Equal(t, "ada@example.com", report.Found[0].Email)
	require.Equal(t, "ACTIVE", report.Found[0].Status)
	require.Equal(t, "email", report.Found[0].Attribute)
	require.Equal(t, "ada@example.com", report.Found[0].Value)

	require.Equal(t, []UserSearch{
		{Attribute: "email", Value: "nobody@example.com"},
		{Attribute: "email", Value: "broken@example.com"},
	}, report.NotFound)

	require.Len(t, report.Errors, 1)
	require.Equal(t, core.FailureTimeout, report.Errors[0].Kind)
}

func TestBuildAssignReportReinterpretsConflicts(t *testing.T) {
	report := BuildAssignReport("0oa1", []core.TaskOutcome{
		{TaskID: "00u1", Outcome: core.Outcome{Status: core.StatusSuccess}},
		{TaskID: "00u2", Outcome: core.Outcome{Status: core.StatusFailed, Kind: core.FailureClient, StatusCode: http.StatusConflict, Message: "HTTP 409"}},
		{TaskID: "00u3", Outcome: core.Outcome{Status: core.StatusFailed, Kind: core.FailureClient, StatusCode: http.StatusNotFound, Message: "HTTP 404"}},
		{TaskID: "00u4", Outcome: core.Outcome{Status: core.StatusFailed, Kind: core.FailureRateLimit, StatusCode: http.StatusTooManyRequests, Message: "HTTP 429"}},
	})

	require.Equal(t, "0oa1", report.AppID)
	require.Equal(t, []string{"00u1"}, report.Assigned)
	require.Equal(t, []string{"00u2"}, report.AlreadyAssigned)
	require.Len(t, report.Failed, 2)
	require.Equal(t, "00u3", report.Failed[0].TaskID)
	require.Equal(t, "00u4", report.Failed[1].TaskID)
}

func TestBuildGrantReport(t *testing.T) {
	report := BuildGrantReport([]core.TaskOutcome{
		{TaskID: "00u1:0", Outcome: core.Outcome{Status: core.StatusSuccess, Result: json.RawMessage(`{"id":"grt1","status":"ACTIVE"}`)}},
		{TaskID: "00u2:1", Outcome: core.Outcome{Status: core.StatusSuccess, Result: json.RawMessage(`{"status":"ACTIVE"}`)}},
		{TaskID: "00u3:2", Outcome: core.Outcome{Status: core.StatusFailed, Kind: core.FailureServer, Message: "HTTP 502"}},
	})

	require.Len(t, report.Created, 1)
	require.Equal(t, CreatedGrant{UserID: "00u1", GrantID: "grt1", Status: GrantStatusActive}, report.Created[0])

	// A 2xx body without a grant id is a failure, not a success.
	require.Len(t, report.Failed, 2)
	require.Equal(t, "00u2:1", report.Failed[0].TaskID)
	require.Equal(t, "grant created but no id returned", report.Failed[0].Message)
	require.Equal(t, "00u3:2", report.Failed[1].TaskID)
}
