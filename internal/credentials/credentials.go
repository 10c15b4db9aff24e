// Package credentials resolves the cluster management login for one invocation.
package credentials

import "os"

const (
	DefaultUsername = "admin"
	DefaultPassword = "admin"

	envOrg = "WEKA_ORG"
)

// envPairs lists username/password variable pairs in lookup order
var envPairs = [][2]string{
	{"WEKA_USERNAME", "WEKA_PASSWORD"},
	{"WEKA_USER", "WEKA_PASS"},
}

// Credentials is the login used against the control plane.
// An empty Org means the root organization.
type Credentials struct {
	Org      string
	Username string
	Password string
}

// LookupFunc reads a single environment variable, like os.LookupEnv
type LookupFunc func(key string) (string, bool)

// Source reports where resolved credentials came from; used for logging only
type Source string

const (
	SourceInvocation  Source = "invocation"
	SourceEnvironment Source = "environment"
	SourceConfig      Source = "config"
	SourceDefault     Source = "default"
)

// Resolve picks credentials in order: explicit username/password, environment
// variables, the configured fallback, and finally admin/admin.
// WEKA_ORG, when set, overrides the organization for every source.
func Resolve(username, password string, lookup LookupFunc, fallback Credentials) (Credentials, Source) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	org, hasOrg := lookup(envOrg)
	withOrg := func(c Credentials) Credentials {
		if hasOrg {
			c.Org = org
		}
		return c
	}

	if username != "" && password != "" {
		return withOrg(Credentials{Username: username, Password: password}), SourceInvocation
	}

	for _, pair := range envPairs {
		user, okUser := lookup(pair[0])
		pass, okPass := lookup(pair[1])
		if okUser && okPass {
			return withOrg(Credentials{Username: user, Password: pass}), SourceEnvironment
		}
	}

	if fallback.Username != "" && fallback.Password != "" {
		return withOrg(fallback), SourceConfig
	}

	return withOrg(Credentials{Username: DefaultUsername, Password: DefaultPassword}), SourceDefault
}

// LoginParams builds the user_login parameters; org is sent only when set
func (c Credentials) LoginParams() map[string]any {
	params := map[string]any{
		"username": c.Username,
		"password": c.Password,
	}
	if c.Org != "" {
		params["org"] = c.Org
	}
	return params
}
