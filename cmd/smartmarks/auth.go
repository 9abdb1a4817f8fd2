package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/mikepea/smartmarks/pkg/smartmarks/client"
)

const googleLoginTimeout = 5 * time.Minute

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "email", Usage: "account email"},
		&cli.StringFlag{Name: "password", Usage: "account password", EnvVars: []string{"SMARTMARKS_PASSWORD"}},
	}
}

func signupCommand() *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "create an account and sign in",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "display name"},
		}, credentialFlags()...),
		Action: func(c *cli.Context) error {
			st, err := load(c)
			if err != nil {
				return err
			}
			email, password := c.String("email"), c.String("password")
			if email == "" || password == "" {
				return cli.Exit("signup needs --email and --password", 1)
			}
			resp, err := st.api.Signup(c.Context, email, password, c.String("name"))
			if err != nil {
				return err
			}
			if err := st.save(resp.Token, resp.User.Email); err != nil {
				return err
			}
			st.printf("%s\n", resp.Message)
			return nil
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in with email and password, Google, or an API key",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{Name: "google", Usage: "sign in with Google in the browser"},
			&cli.StringFlag{Name: "token", Usage: "use an existing API key"},
		}, credentialFlags()...),
		Action: func(c *cli.Context) error {
			st, err := load(c)
			if err != nil {
				return err
			}

			var token string
			switch {
			case c.String("token") != "":
				token = c.String("token")
			case c.Bool("google"):
				if token, err = googleLogin(c.Context, st); err != nil {
					return err
				}
			default:
				email, password := c.String("email"), c.String("password")
				if email == "" && st.session.SignedIn() {
					if user, err := st.api.Session(c.Context); err == nil {
						st.printf("Already signed in as %s\n", user.Email)
						return nil
					}
				}
				if email == "" || password == "" {
					return cli.Exit("login needs --email and --password, --google or --token", 1)
				}
				resp, err := st.api.Login(c.Context, email, password)
				if err != nil {
					return err
				}
				token = resp.Token
			}

			st.api.SetToken(token)
			user, err := st.api.Session(c.Context)
			if err != nil {
				return explain(err)
			}
			if err := st.save(token, user.Email); err != nil {
				return err
			}
			st.printf("Signed in as %s\n", user.Email)
			return nil
		},
	}
}

// googleLogin waits on a loopback port for the server to redirect back
// with a token.
func googleLogin(ctx context.Context, st *state) (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", errors.Wrap(err, "listen for callback")
	}
	returnURL := fmt.Sprintf("http://%s/callback", l.Addr())

	authURL, err := st.api.GoogleAuthURL(ctx, returnURL)
	if err != nil {
		l.Close()
		return "", err
	}

	tokens := make(chan string, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if token == "" {
				http.Error(w, "missing token", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Signed in. You can close this window.")
			select {
			case tokens <- token:
			default:
			}
		}),
	}
	go srv.Serve(l)
	defer srv.Close()

	st.printf("Open this URL to sign in:\n  %s\n", authURL)
	openBrowser(authURL)

	ctx, cancel := context.WithTimeout(ctx, googleLoginTimeout)
	defer cancel()
	select {
	case token := <-tokens:
		return token, nil
	case <-ctx.Done():
		return "", errors.New("timed out waiting for Google sign-in")
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the saved session",
		Action: func(c *cli.Context) error {
			st, err := load(c)
			if err != nil {
				return err
			}
			if st.session.SignedIn() {
				_ = st.api.Logout(c.Context)
			}
			if err := client.ClearSession(st.path); err != nil {
				return err
			}
			st.printf("Signed out\n")
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show who you are signed in as",
		Action: func(c *cli.Context) error {
			st, err := load(c)
			if err != nil {
				return err
			}
			if !st.session.SignedIn() {
				st.printf("Not signed in (%s)\n", st.session.Server)
				return nil
			}
			user, err := st.api.Session(c.Context)
			if err != nil {
				return explain(err)
			}
			st.printf("Signed in to %s as %s\n", st.session.Server, user.Email)
			return nil
		},
	}
}
