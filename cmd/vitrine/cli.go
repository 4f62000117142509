package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/config"
	"github.com/vitrine-shop/vitrine/internal/db"
	"github.com/vitrine-shop/vitrine/internal/errors"
	"github.com/vitrine-shop/vitrine/internal/images"
	"github.com/vitrine-shop/vitrine/internal/mcp"
	"github.com/vitrine-shop/vitrine/internal/storage"
	"github.com/vitrine-shop/vitrine/internal/vision"
	"github.com/vitrine-shop/vitrine/internal/web"
)

// env resolves the base directory, config and logger once per run.
type env struct {
	home   string
	cfg    *config.Config
	logger *slog.Logger
}

func (e *env) baseDir() (string, error) {
	if e.home != "" {
		return e.home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".vitrine"), nil
}

// load reads the config and builds the logger. Logs go to the app's error
// writer so stdout stays clean for JSON output and the MCP transport.
func (e *env) load(c *cli.Context) (string, error) {
	baseDir, err := e.baseDir()
	if err != nil {
		return "", err
	}
	if e.cfg == nil {
		cfg, err := config.Load(baseDir)
		if err != nil {
			return "", fmt.Errorf("failed to load config: %w", err)
		}
		// /api is never served without a token; clients in the same base
		// directory pick it up from there.
		if err := cfg.EnsureAPIToken(baseDir); err != nil {
			return "", fmt.Errorf("failed to prepare API token: %w", err)
		}
		e.cfg = cfg
		e.logger = slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	}
	return baseDir, nil
}

// facade opens the configured backend.
func (e *env) facade(c *cli.Context) (*storage.Facade, error) {
	baseDir, err := e.load(c)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(e.cfg, baseDir)
	if err != nil {
		return nil, err
	}
	return storage.NewFacade(backend, e.logger), nil
}

func (e *env) analyzer() *vision.Client {
	return vision.NewClient(vision.Config{
		BaseURL: e.cfg.AIBaseURL,
		Model:   e.cfg.AIModel,
		Timeout: time.Duration(e.cfg.AITimeoutSeconds) * time.Second,
		Logger:  e.logger,
	})
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	e := &env{}
	app := &cli.App{
		Name:    "vitrine",
		Usage:   "Coin and stamp storefront",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "home", EnvVars: []string{"VITRINE_HOME"}, Usage: "Base directory (default ~/.vitrine)"},
		},
		Before: func(c *cli.Context) error {
			e.home = c.String("home")
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(e),
			mcpCmd(e),
			profileCmd(e),
			itemsCmd(e),
			analyzeCmd(e),
			colorsCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the storefront UI and the REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Listen address (overrides config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			baseDir, err := e.load(c)
			if err != nil {
				return outputError(err)
			}
			if bind := c.String("bind"); bind != "" {
				e.cfg.Bind = bind
			}
			if port := c.Int("port"); port != 0 {
				e.cfg.Port = port
			}

			conn, err := db.Init(baseDir)
			if err != nil {
				return outputError(fmt.Errorf("failed to initialize database: %w", err))
			}
			defer conn.Close()
			db.ConfigurePool(conn, e.cfg)
			mirror := storage.NewFacade(storage.NewSQLiteBackend(conn), e.logger)

			facade, err := e.facade(c)
			if err != nil {
				return outputError(err)
			}

			srv, err := web.NewServer(web.Deps{
				Facade:   facade,
				Mirror:   mirror,
				Analyzer: e.analyzer(),
				Logger:   e.logger,
			}, e.cfg, Version)
			if err != nil {
				return outputError(err)
			}
			e.logger.Info("storage configured", "backend", facade.Engine(), "api", mirror.Engine())
			return web.Run(srv, e.logger)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the catalog tools over MCP stdio",
		Action: func(c *cli.Context) error {
			facade, err := e.facade(c)
			if err != nil {
				return outputError(err)
			}
			if unknown := mcp.ValidateDisabledTools(e.cfg.DisabledTools); len(unknown) > 0 {
				e.logger.Warn("unknown tools in disabled_tools", "tools", unknown)
			}
			return mcp.Run(facade, e.cfg, Version)
		},
	}
}

// profileCmd creates the profile command.
func profileCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Inspect the store profile",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the store profile without secrets",
				Action: func(c *cli.Context) error {
					facade, err := e.facade(c)
					if err != nil {
						return outputError(err)
					}
					p, err := facade.GetProfile(c.Context)
					if err != nil {
						return outputError(err)
					}
					if p == nil {
						return outputError(errors.NewMissingPassword())
					}
					return outputJSON(c, map[string]any{
						"profile":        p.Redacted(),
						"configured":     !p.NeedsSetup(),
						"has_credential": p.HasCredential(),
					})
				},
			},
		},
	}
}

// itemsCmd creates the items command.
func itemsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "items",
		Usage: "Manage catalog items",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List items, available first, newest first within each group",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "COIN or STAMP"},
					&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "AVAILABLE or SOLD"},
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Search name, year or origin"},
				},
				Action: func(c *cli.Context) error {
					var status catalog.ItemStatus
					if s := c.String("status"); s != "" {
						parsed, err := catalog.ParseItemStatus(s)
						if err != nil {
							return outputError(errors.NewInvalidRequest(err.Error()))
						}
						status = parsed
					}

					facade, err := e.facade(c)
					if err != nil {
						return outputError(err)
					}
					items, err := facade.GetItems(c.Context)
					if err != nil {
						return outputError(err)
					}

					matched := catalog.Storefront(items, catalog.Query{
						Search: c.String("query"),
						Type:   catalog.ParseTypeFilter(c.String("type")),
					})
					out := make([]catalog.Item, 0, len(matched))
					for _, item := range matched {
						if status != "" && item.CurrentStatus() != status {
							continue
						}
						out = append(out, withoutImages(item))
					}
					return outputJSON(c, out)
				},
			},
			{
				Name:      "show",
				Usage:     "Print one item",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "images", Usage: "Include photos as data URLs"},
				},
				Action: func(c *cli.Context) error {
					item, err := findItem(c, e)
					if err != nil {
						return outputError(err)
					}
					if !c.Bool("images") {
						item = withoutImages(item)
					}
					return outputJSON(c, item)
				},
			},
			{
				Name:      "delete",
				Usage:     "Permanently delete an item",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return outputError(errors.NewInvalidRequest("item id is required"))
					}
					facade, err := e.facade(c)
					if err != nil {
						return outputError(err)
					}
					_, existed, err := facade.FindItem(c.Context, id)
					if err != nil {
						return outputError(err)
					}
					if err := facade.DeleteItem(c.Context, id); err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]any{"id": id, "deleted": existed})
				},
			},
			{
				Name:      "toggle",
				Usage:     "Flip an item between AVAILABLE and SOLD",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return outputError(errors.NewInvalidRequest("item id is required"))
					}
					facade, err := e.facade(c)
					if err != nil {
						return outputError(err)
					}
					item, err := facade.ToggleStatus(c.Context, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, withoutImages(item))
				},
			},
		},
	}
}

// analyzeCmd creates the analyze command.
func analyzeCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Identify and value an item from two photos",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Value: "COIN", Usage: "COIN or STAMP"},
			&cli.StringFlag{Name: "front", Required: true, Usage: "Front photo path"},
			&cli.StringFlag{Name: "back", Required: true, Usage: "Back photo path"},
			&cli.StringFlag{Name: "key", EnvVars: []string{"VITRINE_AI_KEY"}, Usage: "AI credential (defaults to the stored one)"},
			&cli.BoolFlag{Name: "save", Usage: "Add the analyzed item to the catalog"},
			&cli.StringFlag{Name: "price", Usage: "Asking price, required with --save"},
		},
		Action: func(c *cli.Context) error {
			itemType, err := catalog.ParseItemType(c.String("type"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			if c.Bool("save") && strings.TrimSpace(c.String("price")) == "" {
				return outputError(errors.NewInvalidRequest("--price is required with --save"))
			}

			facade, err := e.facade(c)
			if err != nil {
				return outputError(err)
			}
			front, err := readImage(c.String("front"), e.cfg.MaxImageWidth)
			if err != nil {
				return outputError(err)
			}
			back, err := readImage(c.String("back"), e.cfg.MaxImageWidth)
			if err != nil {
				return outputError(err)
			}
			key, err := credential(c.Context, c.String("key"), facade)
			if err != nil {
				return outputError(err)
			}

			analysis, err := e.analyzer().AnalyzeItem(c.Context, front, back, itemType, key)
			if err != nil {
				return outputError(err)
			}
			if !c.Bool("save") {
				return outputJSON(c, analysis)
			}

			item := catalog.Item{
				ID:         catalog.NewItemID(),
				Type:       itemType,
				Status:     catalog.StatusAvailable,
				FrontImage: front,
				BackImage:  back,
				Analysis:   &analysis,
				UserPrice:  strings.TrimSpace(c.String("price")),
				CreatedAt:  catalog.NowMillis(),
			}
			if err := facade.SaveItem(c.Context, item); err != nil {
				return outputError(err)
			}
			return outputJSON(c, withoutImages(item))
		},
	}
}

// colorsCmd creates the colors command.
func colorsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "colors",
		Usage: "Suggest accent colors for a logo",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "logo", Required: true, Usage: "Logo image path"},
			&cli.StringFlag{Name: "key", EnvVars: []string{"VITRINE_AI_KEY"}, Usage: "AI credential (defaults to the stored one)"},
		},
		Action: func(c *cli.Context) error {
			facade, err := e.facade(c)
			if err != nil {
				return outputError(err)
			}
			logo, err := readImage(c.String("logo"), 0)
			if err != nil {
				return outputError(err)
			}
			// A missing credential falls back to the default palette.
			key, _ := credential(c.Context, c.String("key"), facade)
			colors := e.analyzer().AnalyzeLogoColors(c.Context, logo, key)
			return outputJSON(c, map[string]any{"colors": colors})
		},
	}
}

// Helper functions

// credential returns flagKey, else the credential stored in the profile.
func credential(ctx context.Context, flagKey string, facade *storage.Facade) (string, error) {
	if key := strings.TrimSpace(flagKey); key != "" {
		return key, nil
	}
	p, err := facade.GetProfile(ctx)
	if err != nil {
		return "", err
	}
	if p == nil || !p.HasCredential() {
		return "", errors.NewMissingCredential()
	}
	return p.APIKey, nil
}

// readImage loads a photo file as a data URL, downscaled to maxWidth.
func readImage(path string, maxWidth int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("cannot open %s: %v", path, err))
	}
	defer f.Close()

	dataURL, err := images.FromReader(f, "")
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("%s: %v", path, err))
	}
	if dataURL == "" {
		return "", errors.NewInvalidRequest(fmt.Sprintf("%s is empty", path))
	}
	normalized, err := images.Normalize(dataURL, maxWidth)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("%s: %v", path, err))
	}
	return normalized, nil
}

func findItem(c *cli.Context, e *env) (catalog.Item, error) {
	id := c.Args().First()
	if id == "" {
		return catalog.Item{}, errors.NewInvalidRequest("item id is required")
	}
	facade, err := e.facade(c)
	if err != nil {
		return catalog.Item{}, err
	}
	item, ok, err := facade.FindItem(c.Context, id)
	if err != nil {
		return catalog.Item{}, err
	}
	if !ok {
		return catalog.Item{}, errors.NewNotFound(id)
	}
	return item, nil
}

func withoutImages(item catalog.Item) catalog.Item {
	item.FrontImage = ""
	item.BackImage = ""
	return item
}

// outputJSON marshals result to the app's writer as JSON.
func outputJSON(c *cli.Context, v any) error {
	return writeJSON(c.App.Writer, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if vErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", vErr.Code, vErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
