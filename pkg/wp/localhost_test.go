package wp

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeMainFile(t *testing.T, pluginsDir, file, content string) {
	t.Helper()
	path := filepath.Join(pluginsDir, filepath.FromSlash(file))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
}

func TestInstalledPlugins_ParsesHeaderBlock(t *testing.T) {
	pluginsDir := t.TempDir()
	writeMainFile(t, pluginsDir, "seo-pro/seo-pro.php", `<?php
/*
 * Plugin Name: SEO Pro
 * Version: 2.4.1
 * Author: Example Vendor
 * `+ProjectIDHeader+`: 201
 * Description: does seo things
 */
`)
	// Helper files without headers must not shadow the main file.
	writeMainFile(t, pluginsDir, "seo-pro/helpers.php", "<?php // no headers here")

	host := NewLocalHost(pluginsDir)
	plugins, err := host.InstalledPlugins(context.Background())
	require.NoError(t, err)
	require.Len(t, plugins, 1)

	p := plugins[0]
	require.Equal(t, "seo-pro/seo-pro.php", p.File)
	require.Equal(t, "SEO Pro", p.Name)
	require.Equal(t, "2.4.1", p.Version)
	require.Equal(t, "201", p.Headers[ProjectIDHeader])
	require.Equal(t, "Example Vendor", p.Headers["Author"])
}

func TestInstalledPlugins_FindsSingleFilePlugins(t *testing.T) {
	pluginsDir := t.TempDir()
	writeMainFile(t, pluginsDir, "hello.php", "<?php\n/*\n * Plugin Name: Hello Dolly\n */\n")
	writeMainFile(t, pluginsDir, "index.php", "<?php // Silence is golden.")

	host := NewLocalHost(pluginsDir)
	plugins, err := host.InstalledPlugins(context.Background())
	require.NoError(t, err)
	require.Len(t, plugins, 1, "files without a Plugin Name header are not plugins")
	require.Equal(t, "hello.php", plugins[0].File)
}

func TestInstalledPlugin_SlugDerivation(t *testing.T) {
	require.Equal(t, "akismet", InstalledPlugin{File: "akismet/akismet.php"}.Slug())
	require.Equal(t, "hello", InstalledPlugin{File: "hello.php"}.Slug())
	require.Equal(t, "seo-pro", InstalledPlugin{File: "seo-pro/includes.php"}.Slug())
}

func TestDeletePlugin_RemovesDirectoryOrFile(t *testing.T) {
	pluginsDir := t.TempDir()
	writeMainFile(t, pluginsDir, "akismet/akismet.php", "<?php")
	writeMainFile(t, pluginsDir, "hello.php", "<?php")

	host := NewLocalHost(pluginsDir)
	ctx := context.Background()

	require.NoError(t, host.DeletePlugin(ctx, "akismet/akismet.php"))
	require.NoDirExists(t, filepath.Join(pluginsDir, "akismet"))

	require.NoError(t, host.DeletePlugin(ctx, "hello.php"))
	require.NoFileExists(t, filepath.Join(pluginsDir, "hello.php"))

	require.NoError(t, host.DeletePlugin(ctx, "already-gone/plugin.php"),
		"deleting an absent plugin is a success")
}

func TestInstallFromURL_UnpacksArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("akismet/akismet.php")
	require.NoError(t, err)
	_, err = w.Write([]byte("<?php\n/*\n * Plugin Name: Akismet\n */\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	pluginsDir := t.TempDir()
	host := NewLocalHost(pluginsDir)
	require.NoError(t, host.InstallFromURL(context.Background(), srv.URL+"/akismet.zip"))
	require.FileExists(t, filepath.Join(pluginsDir, "akismet", "akismet.php"))
}

func TestInstallFromURL_FailedDownloadIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	host := NewLocalHost(t.TempDir())
	err := host.InstallFromURL(context.Background(), srv.URL+"/x.zip")
	require.ErrorIs(t, err, ErrUnavailable)
}
