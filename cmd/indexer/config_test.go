package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *config {
	c := &config{}
	c.Hubs.URLs = "https://hub-a.example.com,https://hub-b.example.com"
	c.Hubs.APIKeys = "key-a,"
	c.Auth.AdminPassword = "secretpass"
	c.Concurrency.Backfill = 5
	c.Concurrency.ProcessEvent = 10
	c.Postgres.Environment = "DEV"
	return c
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().validate())
}

func TestValidateRejectsMissingHubs(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Hubs.URLs = ""
	require.Error(t, c.validate())
}

func TestValidateRejectsNonURLHub(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Hubs.URLs = "hub-a.example.com"
	require.Error(t, c.validate())
}

func TestValidateRejectsShortSecrets(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Auth.AdminPassword = "short"
	require.Error(t, c.validate())

	c = validConfig()
	c.Auth.JWTSecret = "tooshort"
	require.Error(t, c.validate())

	c = validConfig()
	c.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	require.NoError(t, c.validate())
}

func TestValidateRejectsBadFids(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Strategy.RootTargets = "1,2,x"
	require.Error(t, c.validate())
}

func TestHubEndpointsCarryAPIKeys(t *testing.T) {
	t.Parallel()

	endpoints, err := validConfig().hubEndpoints()
	require.NoError(t, err)
	require.Len(t, endpoints, 2)
	require.Equal(t, "https://hub-a.example.com", endpoints[0].URL)
	require.Equal(t, map[string]string{"x-api-key": "key-a"}, endpoints[0].Headers)
	require.Nil(t, endpoints[1].Headers)
}

func TestRedisURL(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Redis.Host = "redis.internal"
	c.Redis.Port = "6380"
	c.Redis.DB = 2
	require.Equal(t, "redis://redis.internal:6380/2", c.redisURL())

	c.Redis.Password = "hunter2"
	require.Equal(t, "redis://:hunter2@redis.internal:6380/2", c.redisURL())
}

func TestParseFids(t *testing.T) {
	t.Parallel()

	fids, err := parseFids(" 1, 2,3 ")
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, fids)

	fids, err = parseFids("")
	require.NoError(t, err)
	require.Empty(t, fids)
}
