package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/mikepea/smartmarks/pkg/smartmarks/client"
)

// state is what every command starts from: the saved session and a client
// pointed at the right server.
type state struct {
	path    string
	session *client.Session
	api     *client.Client
	out     io.Writer
}

func load(c *cli.Context) (*state, error) {
	path := c.String("session")
	if path == "" {
		var err error
		if path, err = client.DefaultSessionPath(); err != nil {
			return nil, err
		}
	}
	s, err := client.LoadSession(path)
	if err != nil {
		return nil, err
	}

	server := s.Server
	if c.IsSet("server") || server == "" {
		server = c.String("server")
	}
	if server == "" {
		server = defaultServer
	}
	s.Server = server

	return &state{
		path:    path,
		session: s,
		api:     client.New(server, s.Token),
		out:     c.App.Writer,
	}, nil
}

// loadSignedIn is load for commands that need an account.
func loadSignedIn(c *cli.Context) (*state, error) {
	st, err := load(c)
	if err != nil {
		return nil, err
	}
	if !st.session.SignedIn() {
		return nil, cli.Exit("not signed in; run \"smartmarks login\" first", 1)
	}
	return st, nil
}

func (st *state) save(token, email string) error {
	st.session.Token = token
	st.session.Email = email
	st.api.SetToken(token)
	return st.session.Save(st.path)
}

func (st *state) printf(format string, args ...interface{}) {
	fmt.Fprintf(st.out, format, args...)
}

// explain turns an expired session into a hint to sign in again.
func explain(err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		return cli.Exit("session expired or revoked; run \"smartmarks login\" again", 1)
	}
	return err
}
