package browser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tomasbasham/twitcastrec/internal/cookie"
)

func TestIsClosedChannelShape(t *testing.T) {
	assert.True(t, isClosedChannelShape(errors.New("send on closed channel")))
	assert.True(t, isClosedChannelShape(errors.New("context canceled")))
	assert.False(t, isClosedChannelShape(errors.New("navigation timeout")))
	assert.False(t, isClosedChannelShape(nil))
}

func TestRank(t *testing.T) {
	assert.Equal(t, 2, rank(cookie.Strong))
	assert.Equal(t, 1, rank(cookie.Weak))
	assert.Equal(t, 0, rank(cookie.None))
}

func TestUserDataDir(t *testing.T) {
	s := New(Config{UserDataDir: "/data/profiles"}, nil)
	assert.Equal(t, "/data/profiles/headless", s.userDataDir(true))
	assert.Equal(t, "/data/profiles/visible", s.userDataDir(false))
}

func TestNewDefaultsViewport(t *testing.T) {
	s := New(Config{}, nil)
	assert.Equal(t, int64(1280), s.cfg.ViewportW)
	assert.Equal(t, int64(720), s.cfg.ViewportH)
}

func TestHealthOnFreshSingleton(t *testing.T) {
	s := New(Config{UserDataDir: "/tmp/profiles"}, nil)
	h := s.Health()
	assert.Nil(t, h.Headless)
	assert.Nil(t, h.Visible)
}

func TestShutdownOnFreshSingletonIsNoop(t *testing.T) {
	s := New(Config{UserDataDir: "/tmp/profiles"}, nil)
	s.Shutdown()
}

func TestCheckLoginStatus(t *testing.T) {
	s := New(Config{}, nil)

	assert.Equal(t, cookie.None, s.CheckLoginStatus(t.TempDir()+"/missing.txt"))

	path := t.TempDir() + "/cookies.txt"
	err := cookie.WriteNetscape(path, []cookie.Cookie{{Domain: ".twitcasting.tv", Name: "tc_ss", Value: "abc"}})
	assert.NoError(t, err)
	assert.Equal(t, cookie.Strong, s.CheckLoginStatus(path))
}
