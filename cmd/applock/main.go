package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-app-lock/activity"
	"github.com/jrsteele09/go-app-lock/appsession"
	"github.com/jrsteele09/go-app-lock/internal/config"
	"github.com/jrsteele09/go-app-lock/internal/logger"
	"github.com/jrsteele09/go-app-lock/kv/backend"
	"github.com/jrsteele09/go-app-lock/lock"
	"github.com/jrsteele09/go-app-lock/reauth"
	"github.com/jrsteele09/go-app-lock/reauth/authclient"
	"github.com/jrsteele09/go-app-lock/workspace"
	"github.com/peterh/liner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const prompt = "applock> "

// flagEnv maps command line flags onto the environment variables read by config.
var flagEnv = map[string]string{
	"store":         "STORE_BACKEND",
	"store-path":    "STORE_PATH",
	"auth-endpoint": "AUTH_ENDPOINT",
	"parent-token":  "PARENT_TOKEN",
	"mfa":           "MFA_ENABLED",
	"log-level":     "LOG_LEVEL",
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "applock:", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("applock", pflag.ContinueOnError)
	flagSet.String("store", "", "session store backend: memory, file, redis or sqlite")
	flagSet.String("store-path", "", "directory holding file or sqlite sessions")
	flagSet.String("auth-endpoint", "", "base URL of the app session endpoint")
	flagSet.String("parent-token", "", "parent workspace bearer token")
	flagSet.Bool("mfa", false, "offer authenticator codes as a re-authentication method")
	flagSet.String("log-level", "", "zerolog level")
	history := flagSet.String("history", filepath.Join(os.TempDir(), "applock_history"), "command history file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	for name, env := range flagEnv {
		if flagSet.Changed(name) {
			value, _ := flagSet.GetString(name)
			if name == "mfa" {
				on, _ := flagSet.GetBool(name)
				value = strconv.FormatBool(on)
			}
			if err := os.Setenv(env, value); err != nil {
				return err
			}
		}
	}

	c := config.New()
	logger.Setup(c.GetLogLevel(), c.GetEnv())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backing, err := backend.Open(ctx, c)
	if err != nil {
		return err
	}
	defer backing.Close()

	store, err := appsession.New(backing,
		appsession.WithEvaluator(appsession.Evaluator{
			Timeout:       c.GetActivityTimeout(),
			RequireExpiry: c.GetRequireTokenExpiry(),
		}),
	)
	if err != nil {
		return err
	}

	client, err := authclient.NewWithParentToken(c.GetAuthEndpoint(), c.GetParentToken(), authclient.WithTimeout(c.GetAuthTimeout()))
	if err != nil {
		return err
	}

	bus := activity.NewBus()
	ws, err := workspace.New(workspace.Config{
		Store:  store,
		Flow:   reauth.Flow{Authenticator: client, MFAEnabled: c.GetMFAEnabled()},
		Source: bus,
		TrackerOptions: []activity.TrackerOption{
			activity.WithCheckInterval(c.GetCheckInterval()),
			activity.WithCoalesceInterval(c.GetCoalesceInterval()),
		},
	})
	if err != nil {
		return err
	}

	events, unsubscribe := ws.Events()
	defer unsubscribe()
	go printEvents(events)
	go func() {
		if err := ws.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("workspace stopped watching sessions")
		}
	}()

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if f, err := os.Open(*history); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(*history, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
		line.Close()
	}()

	r := &repl{ws: ws, bus: bus}
	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			// Ctrl+C, Ctrl+D or a closed terminal all end the session.
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if !r.exec(ctx, input) {
			return nil
		}
	}
}

type repl struct {
	ws  *workspace.Workspace
	bus *activity.Bus
}

// exec runs one command and reports whether the loop should continue.
func (r *repl) exec(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return false
	case "help":
		printHelp()
	case "open":
		if id, ok := appArg(args); ok {
			fmt.Printf("app %d is %s\n", id, r.ws.Open(ctx, id))
		}
	case "password":
		r.submit(ctx, reauth.Password(strings.TrimSpace(strings.TrimPrefix(input, cmd))))
	case "mfa":
		r.submit(ctx, reauth.MFA(strings.Join(args, "")))
	case "poke":
		kind := activity.KeyDown
		if len(args) > 0 {
			kind = activity.Kind(args[0])
		}
		r.bus.Publish(kind)
	case "close":
		if id, ok := appArg(args); ok {
			report(r.ws.Close(ctx, id))
		}
	case "logout":
		report(r.ws.Logout(ctx))
	case "apps":
		fmt.Println("active:", r.ws.ActiveAppIDs(ctx))
	case "state":
		if id, ok := appArg(args); ok {
			fmt.Printf("app %d is %s\n", id, r.ws.State(id))
		}
	case "get":
		if len(args) != 2 {
			fmt.Println("usage: get <appId> <url>")
			break
		}
		if id, ok := appArg(args); ok {
			r.get(ctx, id, args[1])
		}
	default:
		fmt.Printf("unknown command %q, try help\n", cmd)
	}
	return true
}

func (r *repl) submit(ctx context.Context, creds reauth.Credentials) {
	id, ok := r.ws.Focused()
	if !ok {
		fmt.Println("open an app first")
		return
	}
	if err := r.ws.Submit(ctx, id, creds); err != nil {
		fmt.Println(reauth.UserMessage(err))
	}
}

// get issues a request on behalf of appID so the app session token is attached.
func (r *repl) get(ctx context.Context, appID int, url string) {
	req, err := http.NewRequestWithContext(workspace.WithApp(ctx, appID), http.MethodGet, url, nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	resp, err := r.ws.Headers().Client().Do(req)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("%s\n%s\n", resp.Status, body)
}

func printEvents(events <-chan workspace.Event) {
	for ev := range events {
		switch ev.Kind {
		case workspace.TaskbarChanged:
			fmt.Printf("\n[taskbar] active apps %v\n", ev.Active)
		case workspace.StateChanged:
			msg := fmt.Sprintf("\n[app %d] %s", ev.AppID, ev.State)
			if ev.State == lock.Locked && ev.Reason != "" {
				msg += fmt.Sprintf(" (%s)", ev.Reason)
			}
			if ev.Message != "" {
				msg += ": " + ev.Message
			}
			fmt.Println(msg)
		}
	}
}

func appArg(args []string) (int, bool) {
	if len(args) == 0 {
		fmt.Println("missing app id")
		return 0, false
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id < 0 {
		fmt.Printf("invalid app id %q\n", args[0])
		return 0, false
	}
	return id, true
}

func report(err error) {
	if err != nil {
		fmt.Println("error:", err)
	}
}

func printHelp() {
	fmt.Print(`commands:
  open <appId>          focus an app, unlocking it if its session is valid
  password <password>   re-authenticate the focused app
  mfa <code>            re-authenticate the focused app with an authenticator code
  poke [kind]           simulate user activity (default keydown)
  close <appId>         close an app and clear its session
  logout                clear every app session
  apps                  list apps with a valid session
  state <appId>         show an app's lock state
  get <appId> <url>     GET url with the app's session token attached
  quit
`)
}
