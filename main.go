package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/Zachkp/stats-consult/internal/auth"
	"github.com/Zachkp/stats-consult/internal/background"
	"github.com/Zachkp/stats-consult/internal/blob"
	"github.com/Zachkp/stats-consult/internal/config"
	"github.com/Zachkp/stats-consult/internal/content"
	"github.com/Zachkp/stats-consult/internal/notify"
	"github.com/Zachkp/stats-consult/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	if err := newCLIApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "stats-consult",
		Usage:   "Statistical consulting website",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "env-file", Usage: "Extra .env file to load (repeatable)"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the website (default)",
				Action: serve,
			},
			adminCmd(),
			backgroundCmd(),
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.StringSlice("env-file")...)
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := blob.NewLocal(cfg.UploadDir, cfg.UploadURLPrefix, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	site, err := loadContent(cfg)
	if err != nil {
		return err
	}

	accounts := auth.NewService(db.DB(), cfg.SessionTTL)
	if cfg.AdminEmail != "" {
		created, err := accounts.EnsureUser(c.Context, auth.Credentials{Email: cfg.AdminEmail, Password: cfg.AdminPassword})
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			log.Printf("Created admin account %s", cfg.AdminEmail)
		}
	}

	s := NewServer(cfg, Deps{
		Store:    db,
		Auth:     accounts,
		Blobs:    blobs,
		Notifier: notify.New(cfg.SMTP),
		Site:     site,
	})

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go s.runCleanup(ctx, 24*time.Hour)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("Site running at http://%s", srv.Addr)
	log.Printf("Admin access available at: /admin/login")
	log.Println("Privacy: Visitor tracking enabled with hashed IP addresses")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.tracking.Wait()
		return err
	}
}

func loadContent(cfg *config.Config) (*content.Site, error) {
	if cfg.ContentFile != "" {
		return content.LoadFile(cfg.ContentFile)
	}
	return content.Load()
}

func adminCmd() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Manage admin accounts",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an admin account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true, Usage: "Login email"},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, EnvVars: []string{"ADMIN_PASSWORD"}, Required: true, Usage: "Password (8-72 characters)"},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Full name"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					db, err := store.Open(cfg.DatabasePath)
					if err != nil {
						return err
					}
					defer db.Close()

					created, err := auth.NewService(db.DB(), cfg.SessionTTL).EnsureUser(c.Context, auth.Credentials{
						Email:    c.String("email"),
						Password: c.String("password"),
						FullName: c.String("name"),
					})
					if err != nil {
						return err
					}
					if !created {
						return fmt.Errorf("an account for %s already exists", c.String("email"))
					}
					fmt.Fprintf(c.App.Writer, "Created admin account %s\n", c.String("email"))
					return nil
				},
			},
		},
	}
}

func backgroundCmd() *cli.Command {
	return &cli.Command{
		Name:  "background",
		Usage: "Work with the animated background",
		Subcommands: []*cli.Command{
			{
				Name:  "render",
				Usage: "Render one frame of the particle field as SVG",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "width", Value: 1280, Usage: "Width in pixels"},
					&cli.IntFlag{Name: "height", Value: 720, Usage: "Height in pixels"},
					&cli.StringFlag{Name: "theme", Value: "dark", Usage: "dark|light|system"},
					&cli.BoolFlag{Name: "system-dark", Usage: "Platform prefers dark (for --theme system)"},
					&cli.IntFlag{Name: "frames", Value: 60, Usage: "Frames to simulate first"},
					&cli.Uint64Flag{Name: "seed", Value: 1, Usage: "Random seed"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "-", Usage: "Output file, - for stdout"},
				},
				Action: func(c *cli.Context) error {
					var w io.Writer = c.App.Writer
					if out := c.String("output"); out != "-" {
						f, err := os.Create(out)
						if err != nil {
							return err
						}
						defer f.Close()
						w = f
					}
					return background.Snapshot(w, background.SnapshotOptions{
						Width:      c.Int("width"),
						Height:     c.Int("height"),
						Theme:      background.ParseTheme(c.String("theme")),
						SystemDark: c.Bool("system-dark"),
						Frames:     c.Int("frames"),
						Seed:       c.Uint64("seed"),
					})
				},
			},
		},
	}
}
