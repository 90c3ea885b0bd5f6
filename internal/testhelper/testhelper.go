// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package testhelper

import (
	"net/http"
	"os"
	"testing"
)

const (
	// TestOnlineAPIURL is a public endpoint used by tests that need a real network round trip.
	TestOnlineAPIURL = "https://nominatim.openstreetmap.org/status?format=json"

	integrationEnv = "PERFORM_ONLINE_API_TESTS"
)

// MockRoundTripper replaces the transport of an HTTP client in tests.
type MockRoundTripper struct {
	Fn func(*http.Request) (*http.Response, error)
}

func (m MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Fn(req)
}

// PerformIntegrationTests skips the calling test unless online API tests were explicitly enabled.
func PerformIntegrationTests(t *testing.T) {
	t.Helper()
	if val := os.Getenv(integrationEnv); val == "" {
		t.Skipf("skipping online API test, set %s to enable", integrationEnv)
	}
}
