package config_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentclose/sentc-go/config"
)

type fakeDoer struct{}

func (fakeDoer) Do(req *http.Request) (*http.Response, error) { return nil, nil }

func TestNewAppliesDefaults(t *testing.T) {
	c := config.New()
	require.Equal(t, "", c.BaseURL)
	require.Equal(t, "", c.AppToken)
	require.Equal(t, 10, c.RotationRetries)
	require.NotNil(t, c.Logger)
	require.Equal(t, http.DefaultClient, c.HTTPDoer)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	doer := fakeDoer{}
	c := config.New(
		config.WithBaseURL("https://api.example.com"),
		config.WithAppToken("app-token"),
		config.WithFilePartURL("https://files.example.com"),
		config.WithHTTPDoer(doer),
		config.WithRotationRetries(3),
	)

	require.Equal(t, "https://api.example.com", c.BaseURL)
	require.Equal(t, "app-token", c.AppToken)
	require.Equal(t, "https://files.example.com", c.FilePartURL)
	require.Equal(t, doer, c.HTTPDoer)
	require.Equal(t, 3, c.RotationRetries)
}

func TestFileApiFallsBackToBaseURLWhenFilePartURLUnset(t *testing.T) {
	c := config.New(config.WithBaseURL("https://api.example.com"), config.WithAppToken("tok"))
	api := c.FileApi()
	require.Equal(t, "https://api.example.com", api.FilePartUrl)
}

func TestFileApiUsesDistinctFilePartURL(t *testing.T) {
	c := config.New(
		config.WithBaseURL("https://api.example.com"),
		config.WithFilePartURL("https://files.example.com"),
	)
	api := c.FileApi()
	require.Equal(t, "https://files.example.com", api.FilePartUrl)
	require.Equal(t, "https://api.example.com", api.BaseUrl)
}

func TestGroupApiAndUserApiCarryConfig(t *testing.T) {
	c := config.New(config.WithBaseURL("https://api.example.com"), config.WithAppToken("tok"))
	require.Equal(t, "https://api.example.com", c.GroupApi().BaseUrl)
	require.Equal(t, "tok", c.UserApi().AppToken)
}
