package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertStatusCode verifies the HTTP response status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertJSONResponse decodes JSON response into v and verifies success
func AssertJSONResponse(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	err = json.Unmarshal(body, v)
	require.NoError(t, err, "failed to unmarshal response: %s", string(body))
}

// AssertErrorResponse verifies error response with expected status and message
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedMessage string) {
	t.Helper()

	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status code")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	// Error responses are plain text in this API
	assert.Contains(t, string(body), expectedMessage, "error message mismatch")
}

// AssertWaitingOrder verifies the waiting list by team name, front first
func AssertWaitingOrder(t *testing.T, state domain.QueueState, names ...string) {
	t.Helper()
	got := make([]string, len(state.Waiting))
	for i, team := range state.Waiting {
		got[i] = team.Name
	}
	assert.Equal(t, names, got, "unexpected waiting order")
}

// AssertOnCourt verifies the two teams of the current match
func AssertOnCourt(t *testing.T, state domain.QueueState, teamA, teamB string) {
	t.Helper()
	require.NotNil(t, state.Current, "expected a match on court")
	assert.Equal(t, teamA, state.Current.TeamA.Name, "unexpected team A")
	assert.Equal(t, teamB, state.Current.TeamB.Name, "unexpected team B")
}
