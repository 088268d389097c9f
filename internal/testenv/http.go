package testenv

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertStatus fails the test unless resp carries want. The body is echoed on
// mismatch since error envelopes explain most failures.
func AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode == want {
		return
	}
	body, _ := io.ReadAll(resp.Body)
	require.Equalf(t, want, resp.StatusCode, "body: %s", body)
}

// ParseJSON reads and closes the body, decoding it into target.
func ParseJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	body := readBody(t, resp)
	require.NoErrorf(t, json.Unmarshal(body, target), "body: %s", body)
}

// AssertNoContent checks a 204 carried no body.
func AssertNoContent(t *testing.T, resp *http.Response) {
	t.Helper()
	require.Empty(t, string(readBody(t, resp)))
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return body
}
