package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Spok95/student-debt-ledger/internal/app"
	"github.com/Spok95/student-debt-ledger/internal/models"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token for local testing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return errors.New("JWT_SECRET is empty")
		}
		roleFlag, _ := cmd.Flags().GetString("role")
		role, err := models.ParseRole(roleFlag)
		if err != nil {
			return err
		}
		user, _ := cmd.Flags().GetInt64("user")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		p := models.Principal{UserID: user, Role: role}
		if cmd.Flags().Changed("student") {
			sid, _ := cmd.Flags().GetInt64("student")
			p.StudentID = &sid
		}
		tok, err := app.NewAuthenticator(secret).Issue(p, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("role", string(models.RoleAdmin), "STUDENT, FINANCE_OFFICER, REGISTRAR or ADMIN")
	tokenCmd.Flags().Int64("user", 1, "User id (sub claim)")
	tokenCmd.Flags().Int64("student", 0, "Student id for STUDENT tokens")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}
