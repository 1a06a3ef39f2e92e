package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"gopkg.in/yaml.v2"
)

// Client is a statically registered relying party. The registration table is
// fixed at startup; the engine owns protocol-level validation, this copy is
// used to sanity check interactions and to bound consent scopes.
type Client struct {
	ClientID      string   `yaml:"client_id"`
	ClientSecret  string   `yaml:"client_secret"`
	GrantTypes    []string `yaml:"grant_types"`
	RedirectURIs  []string `yaml:"redirect_uris"`
	ResponseTypes []string `yaml:"response_types"`
	// Scope is the space-separated set of scopes this client may be granted.
	Scope string `yaml:"scope"`
}

// AllowedScopes returns the client's scope allowance as a set.
func (c *Client) AllowedScopes() map[string]bool {
	out := make(map[string]bool)
	for _, s := range strings.Fields(c.Scope) {
		out[s] = true
	}
	return out
}

// clientRegistry is a fixed list of clients, keyed at load.
type clientRegistry struct {
	byID map[string]*Client
}

func newClientRegistry(clients []*Client) (*clientRegistry, error) {
	r := &clientRegistry{byID: make(map[string]*Client, len(clients))}
	for _, c := range clients {
		if c.ClientID == "" {
			return nil, fmt.Errorf("client with empty client_id")
		}
		if _, ok := r.byID[c.ClientID]; ok {
			return nil, fmt.Errorf("duplicate client_id %s", c.ClientID)
		}
		if len(c.RedirectURIs) == 0 {
			return nil, fmt.Errorf("client %s: at least one redirect_uri is required", c.ClientID)
		}
		for _, ru := range c.RedirectURIs {
			u, err := url.Parse(ru)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, fmt.Errorf("client %s: invalid redirect_uri %q", c.ClientID, ru)
			}
		}
		r.byID[c.ClientID] = c
	}
	return r, nil
}

// loadClientRegistry reads a YAML client list from r.
func loadClientRegistry(r io.Reader) (*clientRegistry, error) {
	var clients []*Client
	if err := yaml.NewDecoder(r).Decode(&clients); err != nil {
		return nil, fmt.Errorf("decoding clients: %w", err)
	}
	return newClientRegistry(clients)
}

func (r *clientRegistry) Get(clientID string) (*Client, bool) {
	c, ok := r.byID[clientID]
	return c, ok
}

// defaultClients is the development registration, matching the fixture
// client this service has always shipped with.
func defaultClients() []*Client {
	return []*Client{
		{
			ClientID:      "oidcCLIENT",
			ClientSecret:  "Some_super_secret",
			GrantTypes:    []string{"authorization_code"},
			RedirectURIs:  []string{"http://localhost:8080/auth/login/callback"},
			ResponseTypes: []string{"code"},
			Scope:         "openid email profile permissions",
		},
	}
}
