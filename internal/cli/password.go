package cli

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gilkh/livret/internal/auth"
	"github.com/gilkh/livret/internal/config"
)

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a template export password",
		Long:  `Reads a password from the terminal (or stdin) and prints the bcrypt hash to store as a template's exportPassword in MongoDB.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			return writeLine(cmd.OutOrStdout(), hash)
		},
	}
}

// readPassword prompts without echo on a terminal and otherwise reads the
// first line of in.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if err := writePrompt(prompt, "Password: "); err != nil {
			return "", err
		}
		b, err := term.ReadPassword(int(f.Fd()))
		_ = writeLine(prompt, "")
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := config.LoadServerSettings()
			if settings.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := auth.NewTokens(settings.JWTSecret, settings.RenderTokenTTL).Issue(subject, role, ttl)
			if err != nil {
				return err
			}
			return writeLine(cmd.OutOrStdout(), token)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject (user id)")
	cmd.Flags().StringVar(&role, "role", "ADMIN", "token role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
