package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/goliatone/go-library"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	adminUsername string
	adminEmail    string
	adminPassword string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account",
	Long: `Create an admin account directly in the database.

When --password is omitted the password is read from the terminal.

Examples:
  librarian create-admin --username root --email root@example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runCreateAdmin(ctx)
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)

	createAdminCmd.Flags().StringVarP(&adminUsername, "username", "u", "", "Admin username")
	createAdminCmd.Flags().StringVarP(&adminEmail, "email", "e", "", "Admin email")
	createAdminCmd.Flags().StringVarP(&adminPassword, "password", "p", "", "Admin password")
	_ = createAdminCmd.MarkFlagRequired("username")
	_ = createAdminCmd.MarkFlagRequired("email")
}

func runCreateAdmin(ctx context.Context) error {
	password := adminPassword
	if password == "" {
		var err error
		if password, err = readPassword(); err != nil {
			return err
		}
	}

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.cfg.GetPersistence().AutoMigrate {
		if err := rt.migrate(ctx); err != nil {
			return err
		}
	}

	handler := library.NewRegisterUserHandler(rt.repo).
		WithLogger(rt.GetLogger("accounts")).
		WithActivitySink(library.LoggerActivitySink(rt.GetLogger("activity")))

	user, err := handler.Execute(ctx, library.RegisterUserMessage{
		Username: adminUsername,
		Email:    adminEmail,
		Password: password,
		Role:     string(library.RoleAdmin),
	})
	if err != nil {
		return err
	}

	fmt.Printf("created admin %s (id=%d)\n", user.Username, user.ID)
	return nil
}

func readPassword() (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--password is required when stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	return strings.TrimSpace(string(raw)), nil
}
