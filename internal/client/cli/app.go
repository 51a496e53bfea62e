package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/exius/internal/client/client"
	"github.com/dmitrijs2005/exius/internal/client/config"
)

var (
	ErrUsage    = errors.New("usage")
	errRejected = errors.New("some files were rejected")
)

// api is the part of client.Client the commands use.
type api interface {
	Ping(ctx context.Context) error
	IssueKey(ctx context.Context, relayName, password, metaData string) (*client.IssuedKey, error)
	GetRelay(ctx context.Context, relayName, githubKey string) (json.RawMessage, error)
	Upload(ctx context.Context, auth client.UploadAuth, files []client.UploadFile) (*client.UploadResult, error)
}

type App struct {
	config *config.Config
	api    api
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(c *config.Config) *App {
	return &App{
		config: c,
		api:    client.New(c.ServerURL, c.RequestTimeout),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

const usage = `usage: exius-cli [-a url] [-t seconds] [-c file] <command> [flags]

commands:
  ping                          check that the server is reachable
  issue  -r relay [-m meta]     issue a subject key (prompts for the relay password)
  upload -r relay -k key [endpoint=]file...
  upload -token tok [endpoint=]file...
                                upload files; endpoint defaults to "data"
  relay  -r relay               print the relay configuration (prompts for a GitHub token)`

// Run executes one command. Global flags must come before the command name.
func (a *App) Run(ctx context.Context, args []string) error {
	args = commandArgs(args)
	if len(args) == 0 {
		fmt.Fprintln(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprintln(a.out, usage)
		return nil
	case "ping":
		return a.ping(ctx)
	case "issue":
		return a.issue(ctx, rest)
	case "upload":
		return a.upload(ctx, rest)
	case "relay":
		return a.relay(ctx, rest)
	default:
		fmt.Fprintln(a.out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// commandArgs drops the global flags handled by the config package.
func commandArgs(args []string) []string {
	for len(args) > 0 && strings.HasPrefix(args[0], "-") && args[0] != "-h" && args[0] != "--help" {
		if strings.Contains(args[0], "=") || len(args) == 1 {
			args = args[1:]
			continue
		}
		args = args[2:]
	}
	return args
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *App) ping(ctx context.Context) error {
	if err := a.api.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s is up\n", a.config.ServerURL)
	return nil
}
