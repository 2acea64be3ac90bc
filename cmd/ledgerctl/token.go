package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"agencyledger/internal/auth"
)

var errNoSecret = errors.New("no signing secret: set AUTH_SECRET or pass --secret")

type tokenOptions struct {
	*rootOptions
	secret string
}

func (o *tokenOptions) signer() (*auth.Signer, error) {
	secret := o.secret
	if secret == "" {
		secret = o.cfg.AuthSecret
	}
	if secret == "" {
		return nil, errNoSecret
	}
	return auth.NewSigner(secret), nil
}

func newTokenCommand(root *rootOptions) *cobra.Command {
	opts := &tokenOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect bearer tokens",
	}
	cmd.PersistentFlags().StringVar(&opts.secret, "secret", "", "signing secret (default AUTH_SECRET)")

	cmd.AddCommand(newTokenIssueCommand(opts))
	cmd.AddCommand(newTokenVerifyCommand(opts))
	return cmd
}

func newTokenIssueCommand(opts *tokenOptions) *cobra.Command {
	var (
		owner string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Print a bearer token for an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("invalid --owner %q: %w", owner, err)
			}
			if ttl == 0 {
				ttl = opts.cfg.TokenTTL
			}
			signer, err := opts.signer()
			if err != nil {
				return err
			}
			token, err := signer.Issue(id, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner id (uuid)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newTokenVerifyCommand(opts *tokenOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Check a token and print its owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := opts.signer()
			if err != nil {
				return err
			}
			claims, err := signer.Verify(args[0])
			if err != nil {
				return fmt.Errorf("verify token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "owner %s, expires %s\n",
				claims.Owner, claims.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
}
