package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"kisanbot/internal/config"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

// datasetNames are the knowledge files serve expects in the data directory.
var datasetNames = []string{
	"crop_diseases.json",
	"market_prices.json",
	"government_schemes.json",
	"knowledge_base.json",
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your KisanBot installation",
		Long: `Verifies that KisanBot's configuration, credentials, datasets, and
database are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("KisanBot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'kisanbot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Knowledge datasets present
			for _, name := range datasetNames {
				path := filepath.Join(cfg.Knowledge.DataDir, name)
				if _, err := os.Stat(path); err != nil {
					printWarn("Dataset: "+name, "missing (will be skipped at startup)")
					warned++
				} else {
					printPass("Dataset: "+name, path)
					passed++
				}
			}

			// 4. Active provider configured
			active := cfg.Providers.Default
			if p, ok := cfg.Providers.Entries[active]; !ok {
				printFail("Provider: "+active, "no entry in providers.entries")
				failed++
			} else if p.APIKey == "" {
				printFail("Provider: "+active, "no API key configured")
				failed++
			} else {
				printPass("Provider: "+active, "configured, model "+p.Model)
				passed++
			}

			// 5. Transcription backend
			if cfg.Transcribe.APIKey == "" {
				printWarn("Transcription", "no API key, voice notes will fail")
				warned++
			} else {
				printPass("Transcription", cfg.Transcribe.Model)
				passed++
			}

			// 6. ffmpeg available for audio re-encoding
			ffmpeg := cfg.Transcribe.FFmpegPath
			if ffmpeg == "" {
				ffmpeg = "ffmpeg"
			}
			if path, err := exec.LookPath(ffmpeg); err != nil {
				printWarn("ffmpeg", "not found, unusual audio formats will be rejected")
				warned++
			} else {
				printPass("ffmpeg", path)
				passed++
			}

			// 7. Translation backend
			if !cfg.Translate.Enabled {
				printWarn("Translation", "disabled, replies stay in the working language")
				warned++
			} else if cfg.Translate.APIKey == "" {
				printWarn("Translation", "enabled but no API key configured")
				warned++
			} else {
				printPass("Translation", "configured")
				passed++
			}

			// 8. WhatsApp credentials
			wa := cfg.WhatsApp
			if wa.AccessToken == "" || wa.PhoneNumberID == "" {
				printFail("WhatsApp", "accessToken and phoneNumberId are required")
				failed++
			} else {
				printPass("WhatsApp", "credentials configured")
				passed++
			}
			if wa.AppSecret == "" {
				printWarn("Webhook signature", "no appSecret, signature verification is disabled")
				warned++
			} else {
				printPass("Webhook signature", "enabled")
				passed++
			}
			if wa.VerifyToken == "" {
				printWarn("Webhook handshake", "no verifyToken, subscription verification will fail")
				warned++
			} else {
				printPass("Webhook handshake", "verifyToken set")
				passed++
			}

			// 9. Database writable
			if err := checkDatabase(cfg.Conversation.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.Conversation.DBPath)
				passed++
			}

			// 10. Port available
			if err := checkPort(cfg.General.Port); err != nil {
				printWarn("Port", fmt.Sprintf("port %d may be in use: %v", cfg.General.Port, err))
				warned++
			} else {
				printPass("Port", fmt.Sprintf(":%d available", cfg.General.Port))
				passed++
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running KisanBot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nKisanBot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! KisanBot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-24s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-24s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-24s %s\n", check, detail)
}
