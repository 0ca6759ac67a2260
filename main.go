package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/customeros/codewatch/config"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/server"
	"github.com/customeros/codewatch/services/imap"
)

const checkTimeout = 2 * time.Minute

func main() {
	app := &cli.App{
		Name:  "codewatch",
		Usage: "watch mailboxes for provider sign-in codes and verification links",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server and the monitor",
				Action: serve,
			},
			{
				Name:   "check",
				Usage:  "Connect to every configured account and list matching messages",
				Action: check,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Usage: "search window in days (defaults to MONITOR_DAYS_BACK)"},
				},
			},
			{
				Name:      "classify",
				Usage:     "Classify a single .eml file and print the extracted payload",
				ArgsUsage: "<file.eml>",
				Action:    classify,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is empty")
	}
	return cfg, nil
}

func serve(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Codewatch starting up...")

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}

	log.Println("Shutdown complete")
	return nil
}

func check(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	accounts, err := config.LoadAccounts(cfg.AppConfig)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts configured, set EMAIL_ACCOUNTS, GMAIL_ACCOUNTS or ACCOUNTS_FILE")
	}

	days := c.Int("days")
	if days <= 0 {
		days = cfg.Monitor.DaysBack
	}

	ctx, cancel := context.WithTimeout(c.Context, checkTimeout)
	defer cancel()

	deps := server.SessionDeps(cfg.Monitor, logger.NewNopLogger())
	failed := 0
	for _, account := range accounts {
		result := imap.CheckAccount(ctx, account, deps, days)
		if result.Err != nil {
			failed++
			fmt.Printf("✗ %s: %v\n", account.Masked(), result.Err)
			continue
		}
		fmt.Printf("✓ %s: %d provider messages, %d classified\n", account.Masked(), result.Found, len(result.Records))
		for _, record := range result.Records {
			payload := record.Payload
			if payload == "" {
				payload = "(no payload)"
			}
			fmt.Printf("    %-22s %-30s %s\n", record.Category, record.RawDate, payload)
		}
	}

	if failed == len(accounts) {
		return cli.Exit("no account could be checked", 1)
	}
	return nil
}

func classify(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("usage: codewatch classify <file.eml>", 2)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	inspection, err := imap.Inspect(raw, server.SessionDeps(cfg.Monitor, logger.NewNopLogger()))
	if err != nil {
		return err
	}

	fmt.Printf("Subject:  %s\n", inspection.Message.Subject)
	fmt.Printf("From:     %s\n", inspection.Message.From)
	fmt.Printf("To:       %s\n", inspection.Message.Recipient)
	if !inspection.Match.Category.IsValid() {
		fmt.Println("Category: none")
		return nil
	}
	fmt.Printf("Category: %s (matched %q)\n", inspection.Match.Category, inspection.Match.Reason)
	fmt.Printf("Payload:  %s\n", inspection.Payload)
	return nil
}
