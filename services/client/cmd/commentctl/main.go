package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/docopt/docopt-go"
	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/internal/platform/logging"
	"github.com/example/comment-sync/internal/platform/natsconn"
	"github.com/example/comment-sync/internal/platform/run"
	"github.com/example/comment-sync/services/client/internal/config"
	"github.com/example/comment-sync/services/client/internal/feed"
	"github.com/example/comment-sync/services/client/internal/intents"
	"github.com/example/comment-sync/services/client/internal/replies"
	"github.com/example/comment-sync/services/client/internal/session"
	"github.com/example/comment-sync/services/client/internal/store"
	"github.com/example/comment-sync/services/client/internal/transport"
)

const CommentCtlVersion = "0.1.0"

const usage = `Comment feed control.

The api url defaults to COMMENTS_API_URL or http://localhost:5000/api.
Sessions are passed with --token or COMMENTS_TOKEN; login prints one.

Usage:
    commentctl list [--page=<page>] [--limit=<limit>] [--sort=<sort>] [options]
    commentctl watch [--sort=<sort>] [--limit=<limit>] [--nats] [options]
    commentctl post [--parent=<id>] <content> [options]
    commentctl edit <id> <content> [options]
    commentctl delete <id> [options]
    commentctl like <id> [options]
    commentctl dislike <id> [options]
    commentctl replies <id> [--all] [options]
    commentctl login --email=<email> --password=<password> [options]
    commentctl register --name=<name> --email=<email> --password=<password> [options]
    commentctl whoami [options]
    commentctl -h | --help
    commentctl --version

Options:
    -h --help            Show this screen.
    --version            Show version.
    --api_url=<api_url>  Backend base url including /api.
    --token=<token>      Session token.
    --page=<page>        Page to show [default: 1].
    --limit=<limit>      Comments per page.
    --sort=<sort>        newest, mostLiked or mostDisliked [default: newest].
    --parent=<id>        Post as a reply to this comment.
    --all                Follow every reply page.
    --nats               Read push events from NATS_URL instead of the websocket.
    --timeout=<timeout>  Request timeout [default: 10s].`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], CommentCtlVersion)
	if err != nil {
		panic(err)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		run.Exit(2)
	}
	log, err := logging.NewConsole(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	a, err := newApp(cfg, opts, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		run.Exit(2)
	}

	commands := []struct {
		name string
		fn   func(context.Context, docopt.Opts) error
	}{
		{"list", a.list},
		{"post", a.post},
		{"edit", a.edit},
		{"delete", a.remove},
		{"like", a.like},
		{"dislike", a.dislike},
		{"replies", a.replies},
		{"login", a.login},
		{"register", a.register},
		{"whoami", a.whoami},
	}

	if watch, _ := opts.Bool("watch"); watch {
		code := run.New(log).WithSignals(func(ctx context.Context) error {
			return a.watch(ctx, opts)
		})
		run.Exit(code)
	}

	for _, cmd := range commands {
		if on, _ := opts.Bool(cmd.name); !on {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := cmd.fn(ctx, opts)
		cancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", transport.UserMessage(err))
			log.Debug("command failed", zap.String("command", cmd.name), zap.Error(err))
			run.Exit(1)
		}
		return
	}
}

type app struct {
	cfg     config.ClientConfig
	log     *zap.Logger
	client  *transport.Client
	store   *store.Store
	actions *intents.Dispatcher
	session *session.Session
	timeout time.Duration
}

func newApp(cfg config.ClientConfig, opts docopt.Opts, log *zap.Logger) (*app, error) {
	if v, _ := opts.String("--api_url"); v != "" {
		cfg.APIURL = v
		cfg.WSURL = transport.WebsocketURL(v)
	}
	if v, _ := opts.String("--token"); v != "" {
		cfg.Token = v
	}
	timeout := 10 * time.Second
	if v, _ := opts.String("--timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout %q", v)
		}
		timeout = d
	}

	client, err := transport.New(transport.Options{BaseURL: cfg.APIURL, Token: cfg.Token, Logger: log})
	if err != nil {
		return nil, err
	}
	st := store.New(store.Options{Limit: cfg.PageLimit, Logger: log})
	return &app{
		cfg:     cfg,
		log:     log,
		client:  client,
		store:   st,
		actions: intents.NewDispatcher(client, st, log),
		session: session.Attach(client, st, log),
		timeout: timeout,
	}, nil
}

func intOpt(opts docopt.Opts, key string, def int) (int, error) {
	v, _ := opts.String(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func (a *app) feedController(opts docopt.Opts) (*feed.Controller, error) {
	limit, err := intOpt(opts, "--limit", a.cfg.PageLimit)
	if err != nil {
		return nil, err
	}
	sort, _ := opts.String("--sort")
	if !contract.ValidSort(sort) {
		return nil, fmt.Errorf("unknown sort %q", sort)
	}
	return feed.New(a.store, a.client, feed.Options{Limit: limit, Sort: sort, Logger: a.log}), nil
}

func (a *app) list(ctx context.Context, opts docopt.Opts) error {
	// viewer flags need the user id
	if err := a.session.Init(ctx); err != nil {
		a.log.Debug("session restore failed", zap.Error(err))
	}
	fc, err := a.feedController(opts)
	if err != nil {
		return err
	}
	page, err := intOpt(opts, "--page", 1)
	if err != nil {
		return err
	}
	if err := fc.SetPage(ctx, page); err != nil {
		return err
	}
	printFeed(os.Stdout, a.store)
	return nil
}

func (a *app) watch(ctx context.Context, opts docopt.Opts) error {
	initCtx, cancel := context.WithTimeout(ctx, a.timeout)
	if err := a.session.Init(initCtx); err != nil {
		a.log.Warn("session restore failed", zap.Error(err))
	}
	cancel()

	fc, err := a.feedController(opts)
	if err != nil {
		return err
	}

	var src *transport.Subscription
	if useNATS, _ := opts.Bool("--nats"); useNATS {
		nc, err := natsconn.Connect(natsconn.Options{URL: a.cfg.NATSURL, Name: "commentctl", Logger: a.log})
		if err != nil {
			return err
		}
		defer nc.Close()
		src, err = transport.SubscribeNATS(ctx, nc, transport.DefaultSubjectPrefix, a.log)
		if err != nil {
			return err
		}
	} else {
		src, err = a.client.Subscribe(ctx, transport.WSOptions{URL: a.cfg.WSURL})
		if err != nil {
			return err
		}
	}

	off := a.store.OnChange(func() { printFeed(os.Stdout, a.store) })
	defer off()

	loadCtx, cancel := context.WithTimeout(ctx, a.timeout)
	err = fc.Mount(loadCtx, src)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", transport.UserMessage(err))
	}
	defer fc.Unmount()

	<-ctx.Done()
	return nil
}

func (a *app) post(ctx context.Context, opts docopt.Opts) error {
	content, _ := opts.String("<content>")
	parent, _ := opts.String("--parent")
	c, err := a.actions.Create(ctx, content, contract.StringPtr(parent))
	if err != nil {
		return err
	}
	fmt.Println(c.ID)
	return nil
}

func (a *app) edit(ctx context.Context, opts docopt.Opts) error {
	id, _ := opts.String("<id>")
	content, _ := opts.String("<content>")
	c, err := a.actions.Update(ctx, id, content)
	if err != nil {
		return err
	}
	printWire(os.Stdout, c)
	return nil
}

func (a *app) remove(ctx context.Context, opts docopt.Opts) error {
	id, _ := opts.String("<id>")
	return a.actions.Delete(ctx, id)
}

func (a *app) like(ctx context.Context, opts docopt.Opts) error {
	return a.react(ctx, opts, store.Like)
}

func (a *app) dislike(ctx context.Context, opts docopt.Opts) error {
	return a.react(ctx, opts, store.Dislike)
}

func (a *app) react(ctx context.Context, opts docopt.Opts, r store.Reaction) error {
	id, _ := opts.String("<id>")
	// load the comment so the confirmed counts land in the store
	c, err := a.client.Get(ctx, id)
	if err != nil {
		return err
	}
	a.store.Seed(c)

	if r == store.Dislike {
		err = a.actions.Dislike(ctx, id)
	} else {
		err = a.actions.Like(ctx, id)
	}
	if err != nil {
		return err
	}
	if got, ok := a.store.Get(id); ok {
		printComment(os.Stdout, got, "")
	}
	return nil
}

func (a *app) replies(ctx context.Context, opts docopt.Opts) error {
	id, _ := opts.String("<id>")
	all, _ := opts.Bool("--all")

	parent, err := a.client.Get(ctx, id)
	if err != nil {
		return err
	}
	a.store.Seed(parent)

	rc := replies.New(id, a.store, a.client, a.actions, a.log)
	defer rc.Close()
	if err := rc.Toggle(ctx); err != nil {
		return err
	}
	for all {
		set, _ := rc.Replies()
		if !set.HasMore() {
			break
		}
		if err := rc.LoadMore(ctx); err != nil {
			return err
		}
	}
	printThread(os.Stdout, a.store, id)
	return nil
}

func (a *app) login(ctx context.Context, opts docopt.Opts) error {
	email, _ := opts.String("--email")
	password, _ := opts.String("--password")
	u, err := a.session.Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "signed in as %s\n", u.Name)
	fmt.Println(a.session.Token())
	return nil
}

func (a *app) register(ctx context.Context, opts docopt.Opts) error {
	name, _ := opts.String("--name")
	email, _ := opts.String("--email")
	password, _ := opts.String("--password")
	u, err := a.session.Register(ctx, name, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "registered %s\n", u.Name)
	fmt.Println(a.session.Token())
	return nil
}

func (a *app) whoami(ctx context.Context, _ docopt.Opts) error {
	if err := a.session.Init(ctx); err != nil {
		return err
	}
	u, ok := a.session.User()
	if !ok {
		fmt.Println("anonymous")
		return nil
	}
	fmt.Printf("%s <%s> %s\n", u.Name, u.Email, u.ID)
	return nil
}
