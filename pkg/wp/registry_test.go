package wp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPRegistry_LookupPlugin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plugins/info/1.0/akismet.json":
			_, _ = w.Write([]byte(`{"slug":"akismet","name":"Akismet","version":"5.3",` +
				`"download_link":"https://downloads.example.test/akismet.5.3.zip"}`))
		case "/plugins/info/1.0/null-answer.json":
			// Unknown slugs answered with a JSON null body, not a 404.
			_, _ = w.Write([]byte(`null`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	reg := NewHTTPRegistry(srv.URL, "")
	ctx := context.Background()

	info, err := reg.LookupPlugin(ctx, "akismet")
	require.NoError(t, err)
	require.Equal(t, "akismet", info.Slug)
	require.Equal(t, "https://downloads.example.test/akismet.5.3.zip", info.DownloadURL)

	_, err = reg.LookupPlugin(ctx, "null-answer")
	require.ErrorIs(t, err, ErrPluginNotFound)

	_, err = reg.LookupPlugin(ctx, "missing")
	require.ErrorIs(t, err, ErrPluginNotFound)
}

func TestHTTPRegistry_LatestCoreVersionPicksHighestOffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/core/version-check/1.7/", r.URL.Path)
		_, _ = w.Write([]byte(`{"offers":[{"current":"6.4.3"},{"current":"6.5.0"},{"current":"6.3.2"}]}`))
	}))
	t.Cleanup(srv.Close)

	reg := NewHTTPRegistry(srv.URL, "")
	version, err := reg.LatestCoreVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "6.5.0", version)
}

func TestHTTPRegistry_LatestCoreVersionNoOffersIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"offers":[]}`))
	}))
	t.Cleanup(srv.Close)

	reg := NewHTTPRegistry(srv.URL, "")
	_, err := reg.LatestCoreVersion(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPRegistry_CoreArchiveURL(t *testing.T) {
	reg := NewHTTPRegistry("", "https://releases.example.test")
	require.Equal(t, "https://releases.example.test/wordpress-6.5.0.zip", reg.CoreArchiveURL("6.5.0"))
}
