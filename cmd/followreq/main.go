package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"followreq/internal/config"
	"followreq/internal/logger"
	"followreq/internal/server"
	"followreq/pkg/api"
	"followreq/pkg/model"
)

const usage = `Usage: followreq [flags] <command> [args]

Commands:
  list                      list pending follow requests
  search <query>            filter pending requests by username or full name
  accept|reject <userId>    approve or ignore a follow request
  follow|unfollow <userId>  follow or unfollow a user
  profile <username>        show the banner for a profile with a pending request
  history                   show recent actions
  targets                   list matching browser pages
  serve                     start the local HTTP boundary

Flags:
`

type options struct {
	configPath string
	devtools   string
	listen     string
	jsonOut    bool
	noCache    bool
	advance    bool
	limit      int
	logLevel   string
}

// newService 便于测试替换
var newService = api.NewService

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := pflag.NewFlagSet("followreq", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	fs.StringVar(&opts.devtools, "devtools", "", "browser DevTools endpoint, overrides config")
	fs.StringVar(&opts.listen, "listen", "", "listen address for serve, overrides config")
	fs.BoolVar(&opts.jsonOut, "json", false, "print JSON instead of a table")
	fs.BoolVar(&opts.noCache, "no-cache", false, "bypass the pending-request cache")
	fs.BoolVar(&opts.advance, "advance", false, "after accept/reject, report the next user in the list")
	fs.IntVar(&opts.limit, "limit", 20, "number of history entries")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level, overrides config")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}
	cmd, cmdArgs := rest[0], rest[1:]
	if err := checkArgs(cmd, cmdArgs); err != nil {
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, "load config:", err)
		return 1
	}
	if opts.devtools != "" {
		cfg.Browser.DevToolsURL = opts.devtools
	}
	if opts.listen != "" {
		cfg.Server.Listen = opts.listen
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Writers: cfg.Log.Writer, File: cfg.Log.File})
	svc, err := newService(cfg, log)
	if err != nil {
		fmt.Fprintln(stderr, "start:", err)
		return 1
	}
	defer svc.Close()

	if err := dispatch(ctx, svc, cfg, log, opts, cmd, cmdArgs, stdout); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func checkArgs(cmd string, args []string) error {
	want := 0
	switch cmd {
	case "list", "history", "targets", "serve":
	case "search", "accept", "reject", "follow", "unfollow", "profile":
		want = 1
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	if len(args) != want {
		return fmt.Errorf("%s expects %d argument(s), got %d", cmd, want, len(args))
	}
	return nil
}

func dispatch(ctx context.Context, svc api.Service, cfg *config.Config, log logger.Logger, opts options, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "list":
		users, err := svc.FetchPending(ctx, !opts.noCache)
		if err != nil {
			return err
		}
		return printUsers(out, users, opts.jsonOut)

	case "search":
		if opts.noCache {
			if _, err := svc.FetchPending(ctx, false); err != nil {
				return err
			}
		}
		users, err := svc.Search(ctx, args[0])
		if err != nil {
			return err
		}
		return printUsers(out, users, opts.jsonOut)

	case "accept", "reject", "follow", "unfollow":
		kind, err := model.ParseActionKind(cmd)
		if err != nil {
			return err
		}
		if opts.advance && kind.RemovesRequest() {
			// 自动跳转需要已加载的名单
			if _, err := svc.FetchPending(ctx, !opts.noCache); err != nil {
				return err
			}
		}
		res := svc.Execute(ctx, model.Intent{Kind: kind, UserID: args[0], AutoAdvance: opts.advance})
		if res.Err != nil {
			return res.Err
		}
		return printOutcome(out, res, opts.jsonOut)

	case "profile":
		view, ok, err := svc.CheckProfile(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s has no pending follow request", args[0])
		}
		return printBanner(out, view, opts.jsonOut)

	case "history":
		recs, err := svc.History(ctx, opts.limit)
		if err != nil {
			return err
		}
		return printHistory(out, recs, opts.jsonOut)

	case "targets":
		targets, err := svc.Targets(ctx)
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return writeJSON(out, targets)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tURL")
		for _, t := range targets {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Title, t.URL)
		}
		return tw.Flush()

	case "serve":
		return server.New(svc, log).ListenAndServe(ctx, cfg.Server.Listen)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func printUsers(out io.Writer, users []model.PendingUser, asJSON bool) error {
	if asJSON {
		if users == nil {
			users = []model.PendingUser{}
		}
		return writeJSON(out, users)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tFULL NAME\tFOLLOWED\tMUTUAL")
	for _, u := range users {
		followed := ""
		if u.FollowedByViewer {
			followed = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", u.ID, u.Username, u.FullName, followed, u.MutualCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d pending request(s)\n", len(users))
	return err
}

func printOutcome(out io.Writer, res model.Outcome, asJSON bool) error {
	if asJSON {
		return writeJSON(out, map[string]any{
			"kind":       res.Kind,
			"userId":     res.UserID,
			"result":     model.ResultOK,
			"nextUserId": res.NextUserID,
		})
	}
	msg := fmt.Sprintf("%s %s: ok", res.Kind, res.UserID)
	if res.NextUserID != "" {
		msg += ", next " + res.NextUserID
	}
	_, err := fmt.Fprintln(out, msg)
	return err
}

func printBanner(out io.Writer, v model.BannerView, asJSON bool) error {
	if asJSON {
		return writeJSON(out, v)
	}
	line := fmt.Sprintf("@%s (%s) wants to follow you [%d of %d]", v.User.Username, v.User.FullName, v.Position, v.Total)
	if v.HasNext {
		line += ", next " + v.NextUserID
	}
	_, err := fmt.Fprintln(out, line)
	return err
}

func printHistory(out io.Writer, recs []model.ActionRecord, asJSON bool) error {
	if asJSON {
		if recs == nil {
			recs = []model.ActionRecord{}
		}
		return writeJSON(out, recs)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tKIND\tUSER\tRESULT\tERROR")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.At.Local().Format("15:04:05"), r.Kind, r.UserID, r.Result, strings.TrimSpace(r.Error))
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
