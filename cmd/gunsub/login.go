package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/nhle/gunsub/internal/credential"
	"github.com/nhle/gunsub/internal/model"
	"github.com/nhle/gunsub/internal/source"
	"github.com/nhle/gunsub/internal/source/github"
	"github.com/nhle/gunsub/internal/theme"
)

func runLogin(args []string) error {
	flags, configPath := commonFlags("login")
	skipVerify := flags.Bool("no-verify", false, "store the token without checking it against GitHub")

	cfg, err := loadConfig(flags, configPath, args)
	if err != nil {
		return err
	}

	user := cfg.GitHub.User
	token := cfg.GitHub.Token
	if token == "" {
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("GitHub login").
					Description("Leave empty to authenticate with the token alone").
					Value(&user),
				huh.NewInput().
					Title("Personal access token").
					Description("Needs the notifications scope").
					EchoMode(huh.EchoModePassword).
					Value(&token).
					Validate(validateRequired("Token")),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("reading credentials: %w", err)
		}
	}

	if !*skipVerify {
		login, err := verifyCredentials(cfg, user, token)
		if err != nil {
			return err
		}
		fmt.Println(theme.HelpStyle.Render("authenticated as " + login))
	}

	if err := credential.Set(credential.TokenKey(user), token); err != nil {
		return err
	}

	fmt.Println(theme.RunStyle("ok").Render("✓") + " token stored for " + theme.ValueStyle.Render(displayUser(user)))
	return nil
}

func runLogout(args []string) error {
	flags, configPath := commonFlags("logout")
	cfg, err := loadConfig(flags, configPath, args)
	if err != nil {
		return err
	}

	err = credential.Delete(credential.TokenKey(cfg.GitHub.User))
	if errors.Is(err, credential.ErrNotFound) {
		fmt.Println(theme.HelpStyle.Render("no stored token for " + displayUser(cfg.GitHub.User)))
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println("token removed for " + theme.ValueStyle.Render(displayUser(cfg.GitHub.User)))
	return nil
}

// verifyCredentials checks the credentials against GitHub and returns
// the authenticated login.
func verifyCredentials(cfg *model.AppConfig, user, token string) (string, error) {
	client, err := github.NewClient(github.Config{
		BaseURL: cfg.GitHub.BaseURL,
		User:    user,
		Token:   token,
		Timeout: time.Duration(cfg.GitHub.TimeoutSec) * time.Second,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var account struct {
		Login string `json:"login"`
	}
	if err := client.Do(ctx, http.MethodGet, "/user", nil, &account); err != nil {
		if source.IsAuthError(err) {
			return "", fmt.Errorf("GitHub rejected the credentials")
		}
		return "", fmt.Errorf("verifying credentials: %w", err)
	}
	return account.Login, nil
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func displayUser(user string) string {
	if user == "" {
		return "(token only)"
	}
	return user
}
