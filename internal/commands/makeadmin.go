package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bankdash/internal/core"
)

func newMakeAdminCommand() *cobra.Command {
	var authID, email string

	cmd := &cobra.Command{
		Use:   "make-admin",
		Short: "Grant the admin role to a user, registering them if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMakeAdmin(authID, email)
		},
	}

	cmd.Flags().StringVar(&authID, "auth-id", "", "auth provider subject (required)")
	cmd.Flags().StringVar(&email, "email", "", "user email (required)")
	_ = cmd.MarkFlagRequired("auth-id")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runMakeAdmin(authID, email string) error {
	_, repo, err := openStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx := context.Background()

	user, err := repo.GetUserByAuthID(ctx, authID)
	switch {
	case err == nil:
		if user.Role == core.RoleAdmin {
			fmt.Printf("%s is already an admin\n", user.Email)
			return nil
		}
		if err := repo.UpdateUserRole(ctx, authID, core.RoleAdmin); err != nil {
			return err
		}
		fmt.Printf("Promoted %s to admin\n", user.Email)
		return nil
	case errors.Is(err, core.ErrNotFound):
		created, err := repo.CreateUser(ctx, authID, email, fullNameFromEmail(email), core.RoleAdmin)
		if err != nil {
			return err
		}
		fmt.Printf("Registered %s as admin\n", created.Email)
		return nil
	default:
		return err
	}
}

// fullNameFromEmail derives a display name from the address local part:
// "jane.doe@example.com" becomes "Jane Doe".
func fullNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	words := strings.Split(strings.ReplaceAll(local, ".", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
