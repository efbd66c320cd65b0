package web

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiteHasPages(t *testing.T) {
	site := Site()
	for _, name := range []string{
		"index.html", "loader.html", "apps.html", "gms.html",
		"agloader.html", "info.html", "loading.html",
		"public/index.html", "public/css/style.css", "public/js/app.js",
	} {
		data, err := fs.ReadFile(site, name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}
}
