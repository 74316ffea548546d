package netx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("image-bytes"))
		case "/big":
			_, _ = w.Write(make([]byte, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	data, err := Download(ctx, srv.Client(), srv.URL+"/ok", 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)

	_, err = Download(ctx, srv.Client(), srv.URL+"/big", 16)
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = Download(ctx, srv.Client(), srv.URL+"/missing", 1024)
	require.ErrorContains(t, err, "download failed: 404")

	_, err = Download(ctx, srv.Client(), "://bad", 1024)
	require.Error(t, err)
}
