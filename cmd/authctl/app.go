package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/MrEthical07/authsession"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const metaRuntime = "runtime"

// runtime is built once per invocation in Before and torn down in After.
type runtime struct {
	engine *authsession.Engine
	redis  redis.UniversalClient
	logger *logrus.Logger
	out    io.Writer
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "authctl",
		Usage:   "Sign in to an identity provider and call protected APIs",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			loginCommand(),
			signupCommand(),
			whoamiCommand(),
			getCommand(),
			refreshCommand(),
			logoutCommand(),
			reportCommand(),
		},
		Before: setup,
		After:  teardown,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "dotenv file with AUTHSESSION_* settings",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:    "redis",
			Aliases: []string{"r"},
			Usage:   "Redis address for session records (e.g., localhost:6379)",
			EnvVars: []string{"AUTHSESSION_REDIS_ADDR"},
		},
		&cli.StringFlag{
			Name:    "session",
			Aliases: []string{"s"},
			Usage:   "session id to act on",
			EnvVars: []string{"AUTHSESSION_SESSION_ID"},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log format: text or json",
			Value: "text",
		},
	}
}

func setup(c *cli.Context) error {
	// A missing default env file is fine. godotenv never overrides variables
	// that are already set.
	if f := c.String("env-file"); f != "" {
		if err := godotenv.Load(f); err != nil && c.IsSet("env-file") {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	logger := logrus.New()
	logger.SetOutput(c.App.ErrWriter)
	logger.SetLevel(logrus.WarnLevel)
	if c.Bool("verbose") {
		logger.SetLevel(logrus.DebugLevel)
	}
	switch c.String("log-format") {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", c.String("log-format"))
	}

	cfg, err := authsession.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	b := authsession.New().WithConfig(cfg).WithLogger(logger)
	rt := &runtime{logger: logger, out: c.App.Writer}
	if addr := c.String("redis"); addr != "" {
		rt.redis = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		b.WithRedis(rt.redis)
	}

	rt.engine, err = b.Build()
	if err != nil {
		return err
	}
	c.App.Metadata[metaRuntime] = rt
	return nil
}

func teardown(c *cli.Context) error {
	rt, ok := c.App.Metadata[metaRuntime].(*runtime)
	if !ok {
		return nil
	}
	rt.engine.Close()
	if rt.redis != nil {
		return rt.redis.Close()
	}
	return nil
}

func fromContext(c *cli.Context) (*runtime, error) {
	rt, ok := c.App.Metadata[metaRuntime].(*runtime)
	if !ok {
		return nil, errors.New("not initialized")
	}
	return rt, nil
}

func (rt *runtime) printJSON(v any) error {
	enc := json.NewEncoder(rt.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// userError turns err into a message fit for the terminal.
func userError(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(authsession.UserMessage(err), 1)
}
