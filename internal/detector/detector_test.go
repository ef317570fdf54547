package detector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tomasbasham/twitcastrec/internal/cookie"
)

func TestCheckHTTPGateMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<div class="tw-membership-gate">Members only</div>`))
	}))
	defer srv.Close()

	d := New(Config{UserAgent: "ua"}, nil, nil)
	res, err := d.Check(context.Background(), srv.URL, nil)
	assert.NoError(t, err)
	assert.Equal(t, ReasonAuthRequired, res.Reason)
	assert.True(t, res.CookieIncomplete)
}

func TestCheckHTTPLiveMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<script>var state = {"is_live":true};</script><div data-movie-id="123456"></div>`))
	}))
	defer srv.Close()

	d := New(Config{UserAgent: "ua"}, nil, nil)
	res, err := d.Check(context.Background(), srv.URL, nil)
	assert.NoError(t, err)
	assert.Equal(t, ReasonLive, res.Reason)
	assert.Equal(t, MethodHTTP, res.Method)
}

func TestCheckHTTPNotLiveNoBrowser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>offline</body></html>`))
	}))
	defer srv.Close()

	d := New(Config{UserAgent: "ua"}, nil, nil)
	res, err := d.Check(context.Background(), srv.URL, nil)
	assert.NoError(t, err)
	assert.Equal(t, ReasonNotLive, res.Reason)
}

func TestCheckHTTPUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := New(Config{UserAgent: "ua"}, nil, nil)
	res, err := d.Check(context.Background(), srv.URL, []cookie.Cookie{{Name: "tc_ss", Value: "x"}})
	assert.NoError(t, err)
	assert.Equal(t, ReasonAuthRequired, res.Reason)
	assert.False(t, res.CookieIncomplete)
}

func TestCheckHTTPNotLiveNeedsBrowserOnlyWithMovieID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>offline</body></html>`))
	}))
	defer srv.Close()

	d := New(Config{UserAgent: "ua"}, nil, nil)
	_, movieID, needsBrowser, err := d.checkHTTP(context.Background(), srv.URL, nil)
	assert.NoError(t, err)
	assert.Equal(t, "", movieID)
	assert.False(t, needsBrowser, "a channel with no movie id should not trigger the browser stage")
}

func TestCheckHTTPNotLiveWithMovieIDNeedsBrowser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>offline <div data-movie-id="555"></div></body></html>`))
	}))
	defer srv.Close()

	d := New(Config{UserAgent: "ua"}, nil, nil)
	_, movieID, needsBrowser, err := d.checkHTTP(context.Background(), srv.URL, nil)
	assert.NoError(t, err)
	assert.Equal(t, "555", movieID)
	assert.True(t, needsBrowser)
}

func TestExtractMovieID(t *testing.T) {
	assert.Equal(t, "987654", extractMovieID(`"movie_id": "987654"`))
	assert.Equal(t, "111", extractMovieID(`data-movie-id="111"`))
	assert.Equal(t, "", extractMovieID(`no id here`))
}

func TestContainsAny(t *testing.T) {
	assert.True(t, containsAny("hello group-only world", gateMarkers))
	assert.False(t, containsAny("nothing interesting", gateMarkers))
}
