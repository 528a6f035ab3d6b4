package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"v1.2.4", "1.2.3", 1},
		{"1.2.3", "1.10.0", -1},
		{"2.0.0-rc1", "1.9.9", 1},
		{"1.0", "1.0.0", 0},
		{"dev", "0.0.1", -1},
		{"0.0.1", "dev", 1},
		{"dev", "", 0},
		{"abc1234", "v0.1.0", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}

	assert.True(t, IsNewer("v0.1.0", "v0.2.0"))
	assert.False(t, IsNewer("v0.2.0", "v0.2.0"))
}

func TestInfo(t *testing.T) {
	t.Parallel()

	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.String(), "hwclaim "+Version)
	assert.Contains(t, UserAgent(), "hwclaim/")
}

func TestChecker_Latest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/mrz1836/hwclaim/releases/latest", r.URL.Path)
		assert.Contains(t, r.Header.Get("User-Agent"), "hwclaim/")
		_, _ = w.Write([]byte(`{"tag_name":"v1.4.0","html_url":"https://example.test/r"}`))
	}))
	defer srv.Close()

	c := NewChecker()
	c.BaseURL = srv.URL + "/"
	r, err := c.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1.4.0", r.TagName)
}

func TestChecker_Error(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewChecker()
	c.BaseURL = srv.URL
	_, err := c.Latest(context.Background())
	require.ErrorIs(t, err, ErrGitHubAPIFailed)
	assert.Contains(t, err.Error(), "rate limited")
}
