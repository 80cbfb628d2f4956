// Command authorize runs the one-time browser consent flow and writes a
// token file holding the refresh token the archive function needs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gmail-archiver/internal/app"
	"gmail-archiver/internal/integrations/gmail"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load if present")
	credsPath := flag.String("credentials", "credentials.json", "OAuth client secrets downloaded from the Google Cloud console")
	tokenPath := flag.String("token", "token.json", "where to write the token file")
	addr := flag.String("listen", "127.0.0.1:0", "loopback address for the OAuth redirect")
	timeout := flag.Duration("timeout", 5*time.Minute, "how long to wait for consent")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "authorize:", err)
		os.Exit(1)
	}
	if err := run(*credsPath, *tokenPath, *addr, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "authorize:", err)
		os.Exit(1)
	}
}

func run(credsPath, tokenPath, addr string, timeout time.Duration) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := gmail.LoadOAuthConfig(credsPath)
	if err != nil {
		return err
	}

	consent := &gmail.Consent{
		Config:  cfg,
		Addr:    addr,
		Timeout: timeout,
		Log:     app.NewLogger(os.Stderr, slog.LevelInfo),
	}
	tok, err := consent.Run(ctx, func(authURL string) {
		fmt.Printf("Open this URL in a browser to authorize read-only Gmail access:\n\n%s\n\n", authURL)
	})
	if err != nil {
		return err
	}

	if err := gmail.SaveTokenFile(tokenPath, gmail.NewTokenFile(cfg, tok)); err != nil {
		return err
	}

	fmt.Printf("Token written to %s.\n\n", tokenPath)
	fmt.Println("Configure the function with:")
	fmt.Println("  REFRESH_TOKEN  = refresh_token from the token file")
	fmt.Println("  CLIENT_ID      = client_id from the token file")
	fmt.Println("  CLIENT_SECRET  = client_secret from the token file")
	fmt.Println("  S3_BUCKET_NAME = target bucket")
	fmt.Println("  GMAIL_USER_ID  = me")
	fmt.Println("or store the three secrets as SecureString parameters under PARAM_PREFIX.")
	return nil
}
