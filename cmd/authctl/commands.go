package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/identity"
	"github.com/MrEthical07/authsession/session"
	"github.com/urfave/cli/v2"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "Sign in and print the new session id",
		ArgsUsage: "USERNAME",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "password",
				Aliases:  []string{"p"},
				Usage:    "account password",
				EnvVars:  []string{"AUTHSESSION_PASSWORD"},
				Required: true,
			},
		},
		Action: login,
	}
}

func login(c *cli.Context) error {
	rt, err := fromContext(c)
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return cli.Exit("login takes exactly one USERNAME", 2)
	}

	store := rt.engine.NewSession()
	snap, err := rt.engine.Login(c.Context, store, c.Args().First(), c.String("password"))
	if err != nil && !snap.Authenticated() {
		return userError(err)
	}
	if err != nil {
		rt.logger.WithError(err).Warn("signed in, but the session was not saved")
	}
	fmt.Fprintf(rt.out, "signed in as %s\nsession: %s\n", snap.Identity.Username, store.ID())
	return nil
}

func signupCommand() *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "Create an account and, unless disabled, sign in",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "full name"},
			&cli.StringFlag{
				Name:     "password",
				Aliases:  []string{"p"},
				EnvVars:  []string{"AUTHSESSION_PASSWORD"},
				Required: true,
			},
		},
		Action: signup,
	}
}

func signup(c *cli.Context) error {
	rt, err := fromContext(c)
	if err != nil {
		return err
	}

	var store *session.Store
	if rt.engine.Config().Account.AutoLogin {
		store = rt.engine.NewSession()
	}
	res, err := rt.engine.Signup(c.Context, store, identity.Profile{
		Username: c.String("username"),
		Email:    c.String("email"),
		FullName: c.String("name"),
		Password: c.String("password"),
	})
	if res == nil {
		return userError(err)
	}

	fmt.Fprintf(rt.out, "created account %s (id %d)\n", res.User.Username, res.User.ID)
	if errors.Is(err, authsession.ErrAutoLoginFailed) {
		return userError(err)
	}
	if store != nil && store.Get().Authenticated() {
		fmt.Fprintf(rt.out, "session: %s\n", store.ID())
	}
	return nil
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:   "whoami",
		Usage:  "Show the signed-in identity of a session",
		Action: whoami,
	}
}

func whoami(c *cli.Context) error {
	rt, store, err := restore(c)
	if err != nil {
		return err
	}
	rec, ok := rt.engine.Record(store)
	if !ok {
		return userError(authsession.ErrUnauthenticated)
	}
	rec.AccessToken, rec.RefreshToken = "", ""
	return rt.printJSON(rec)
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "GET a URL with the session's bearer token",
		ArgsUsage: "URL",
		Action:    get,
	}
}

func get(c *cli.Context) error {
	rt, store, err := restore(c)
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return cli.Exit("get takes exactly one URL", 2)
	}

	req, err := http.NewRequestWithContext(c.Context, http.MethodGet, c.Args().First(), nil)
	if err != nil {
		return err
	}
	resp, err := rt.engine.HTTPClient(store).Do(req)
	if err != nil {
		if errors.Is(err, authsession.ErrUnauthenticated) {
			return userError(err)
		}
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(rt.out, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return cli.Exit(fmt.Sprintf("\n%s", resp.Status), 1)
	}
	return nil
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:   "refresh",
		Usage:  "Exchange the session's refresh token now",
		Action: refresh,
	}
}

func refresh(c *cli.Context) error {
	rt, store, err := restore(c)
	if err != nil {
		return err
	}
	cred, err := rt.engine.Refresh(c.Context, store)
	if err != nil {
		return userError(err)
	}
	expires := "unknown"
	if !cred.ExpiresAt.IsZero() {
		expires = cred.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
	}
	fmt.Fprintf(rt.out, "refreshed; access token expires %s\n", expires)
	return nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign a session out",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "everywhere",
				Usage: "also sign out every other session of the same user",
			},
		},
		Action: logout,
	}
}

func logout(c *cli.Context) error {
	rt, store, err := restore(c)
	if err != nil {
		return err
	}
	if !c.Bool("everywhere") {
		if err := rt.engine.SignOut(c.Context, store); err != nil {
			return err
		}
		fmt.Fprintln(rt.out, "signed out")
		return nil
	}
	n, err := rt.engine.SignOutEverywhere(c.Context, store)
	if err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "signed out; %d other session(s) removed\n", n)
	return nil
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Print the security-relevant configuration and lint findings",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "strict", Usage: "fail on high severity findings"},
		},
		Action: report,
	}
}

func report(c *cli.Context) error {
	rt, err := fromContext(c)
	if err != nil {
		return err
	}
	if err := rt.printJSON(rt.engine.SecurityReport()); err != nil {
		return err
	}
	lint := rt.engine.Config().Lint()
	for _, w := range lint {
		fmt.Fprintf(rt.out, "%-4s %s: %s\n", w.Severity, w.Code, w.Message)
	}
	if err := reportPersistence(c, rt); err != nil {
		return err
	}
	if c.Bool("strict") {
		if err := lint.AsError(authsession.LintHigh); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}
	return nil
}

// restore loads the session named by --session.
// reportPersistence prints the Redis round trip and, when --session is set,
// how many sessions its subject holds.
func reportPersistence(c *cli.Context, rt *runtime) error {
	latency, err := rt.engine.PingPersister(c.Context)
	switch {
	case errors.Is(err, authsession.ErrNotSupported):
		fmt.Fprintln(rt.out, "redis: not configured")
		return nil
	case err != nil:
		fmt.Fprintf(rt.out, "redis: unavailable (%v)\n", err)
		return nil
	}
	fmt.Fprintf(rt.out, "redis: ok (%s)\n", latency.Round(time.Microsecond))

	if strings.TrimSpace(c.String("session")) == "" {
		return nil
	}
	_, store, err := restore(c)
	if err != nil {
		return err
	}
	ids, err := rt.engine.SubjectSessions(c.Context, store)
	if err != nil {
		return userError(err)
	}
	fmt.Fprintf(rt.out, "sessions for subject %s: %d\n", store.Get().Identity.SubjectID, len(ids))
	return nil
}

func restore(c *cli.Context) (*runtime, *session.Store, error) {
	rt, err := fromContext(c)
	if err != nil {
		return nil, nil, err
	}
	id := strings.TrimSpace(c.String("session"))
	if id == "" {
		return nil, nil, cli.Exit("--session is required", 2)
	}
	store, err := rt.engine.Restore(c.Context, id)
	if errors.Is(err, authsession.ErrRecordNotFound) {
		return nil, nil, cli.Exit("no such session; sign in again (is --redis set?)", 1)
	}
	if err != nil {
		return nil, nil, userError(err)
	}
	return rt, store, nil
}
