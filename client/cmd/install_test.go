package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInstallCommand_AlreadyUpToDate runs the install command against a local
// feed whose best release matches the running version, the command must end
// without touching an installer.
func TestInstallCommand_AlreadyUpToDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ".json"):
			// development builds compare as 0.0.0, so this release is never newer
			_, _ = fmt.Fprintf(w, `[{"tag_name": "v0.0.0", "prerelease": false, "assets": [
				{"name": "latest.yml", "browser_download_url": "%[1]s/v0.0.0/latest.yml"},
				{"name": "latest-mac.yml", "browser_download_url": "%[1]s/v0.0.0/latest-mac.yml"},
				{"name": "latest-linux.yml", "browser_download_url": "%[1]s/v0.0.0/latest-linux.yml"}
			]}]`, "http://"+r.Host)
		case strings.HasSuffix(r.URL.Path, ".yml"):
			_, _ = fmt.Fprint(w, "version: 0.0.0\npath: driftdesk-0.0.0.zip\nfiles:\n  - url: driftdesk-0.0.0.zip\n    size: 4\n")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs([]string{"install", "--feed-url", server.URL + "/releases.json"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "already running the latest version")
}
