package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/backendclient"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/repository/sqlite"
	tokenstore "github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/tokenstore/sqlite"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/adapters/transport"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/config"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/domain"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/core/session"
	"github.com/wadjakorntonsri/go-url-shortener-edge/pkg/logger"
)

const usage = `usage: shortener <command> [flags]

session commands:
  register -username u -email e -password p
  login    -email e -password p
  logout
  whoami
  shorten  <url>
  list
  info     <code>

admin commands (direct database access):
  export
  import   -file links.json`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.New(cfg).With().Str("service", "cli").Logger()
	ctx := context.Background()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "export", "import":
		err = runAdmin(ctx, cfg, cmd, args)
	case "register", "login", "logout", "whoami", "shorten", "list", "info":
		err = runSession(ctx, cfg, log, cmd, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	mgr   *session.Manager
	links *session.Links
	out   io.Writer
}

func runSession(ctx context.Context, cfg *config.Config, log zerolog.Logger, cmd string, args []string) error {
	store, err := tokenstore.New(cfg.TokenStoreURL, cfg.TokenStoreSecret, log)
	if err != nil {
		return fmt.Errorf("opening token store: %w", err)
	}
	defer store.Close()

	plain := &http.Client{Timeout: cfg.UpstreamTimeout}
	anon := session.NewAnonymousTracker(store)
	mgr := session.NewManager(store, anon, backendclient.New(cfg.BackendURL, plain), log, session.Options{
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	})
	mgr.Init(ctx)

	authed := &http.Client{Timeout: cfg.UpstreamTimeout, Transport: transport.New(mgr, nil)}
	a := &app{
		mgr:   mgr,
		links: session.NewLinks(backendclient.New(cfg.BackendURL, authed), mgr, anon),
		out:   os.Stdout,
	}
	return a.run(ctx, cmd, args)
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		username := fs.String("username", "", "account name")
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		confirm := fs.String("confirm", "", "password confirmation (defaults to -password)")
		fs.Parse(args)
		if *confirm == "" {
			confirm = password
		}
		user, err := a.mgr.Register(ctx, *username, *email, *password, *confirm)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "registered as %s <%s>\n", user.Username, user.Email)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		fs.Parse(args)
		user, err := a.mgr.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "signed in as %s\n", user.Username)

	case "logout":
		a.mgr.Logout(ctx)
		fmt.Fprintln(a.out, "signed out")

	case "whoami":
		s, ok := a.mgr.Session(ctx)
		if !ok {
			fmt.Fprintln(a.out, "anonymous")
			return nil
		}
		fmt.Fprintf(a.out, "%s <%s> (id %d)\n", s.Username, s.Email, s.UserID)

	case "shorten":
		if len(args) != 1 {
			return errors.New("shorten takes exactly one url")
		}
		res, err := a.links.Shorten(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, res.ShortURL)

	case "list":
		list, err := a.links.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CODE\tCLICKS\tURL")
		for _, l := range list.URLs {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", l.ShortCode, l.Clicks, l.OriginalURL)
		}
		return tw.Flush()

	case "info":
		if len(args) != 1 {
			return errors.New("info takes exactly one short code")
		}
		link, err := a.links.Get(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(link)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func runAdmin(ctx context.Context, cfg *config.Config, cmd string, args []string) error {
	repo, err := sqlite.NewSQLiteRepository(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer repo.Close()

	if cmd == "export" {
		return doExport(ctx, repo, os.Stdout)
	}

	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "", "JSON file to import")
	fs.Parse(args)
	if *file == "" {
		fs.PrintDefaults()
		return errors.New("-file is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := doImport(ctx, repo, f)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d links\n", n)
	return nil
}

func doExport(ctx context.Context, repo *sqlite.SQLiteRepository, w io.Writer) error {
	links, err := repo.Dump(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(links)
}

// doImport skips codes that already exist so an import can be rerun.
func doImport(ctx context.Context, repo *sqlite.SQLiteRepository, r io.Reader) (int, error) {
	var links []domain.Link
	if err := json.NewDecoder(r).Decode(&links); err != nil {
		return 0, fmt.Errorf("decode failed: %w", err)
	}

	count := 0
	for _, l := range links {
		existing, err := repo.GetByShortCode(ctx, l.ShortCode)
		if err != nil {
			return count, err
		}
		if existing != nil {
			continue
		}
		if err := repo.Create(ctx, &l); err != nil {
			return count, fmt.Errorf("importing %s: %w", l.ShortCode, err)
		}
		count++
	}
	return count, nil
}
