package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/psds-microservice/assist-service/internal/application"
	"github.com/psds-microservice/assist-service/internal/model"
	"github.com/psds-microservice/assist-service/internal/service"
	"github.com/spf13/cobra"
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an account, typically the first ADMIN",
	RunE:  runCreateUser,
}

var createUserFlags struct {
	name  string
	email string
	role  string
}

func init() {
	createUserCmd.Flags().StringVar(&createUserFlags.name, "name", "", "display name")
	createUserCmd.Flags().StringVar(&createUserFlags.email, "email", "", "login email")
	createUserCmd.Flags().StringVar(&createUserFlags.role, "role", string(model.RoleAdmin), "ADMIN or DRIVER")
	_ = createUserCmd.MarkFlagRequired("name")
	_ = createUserCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(createUserCmd)
}

// The password comes from ASSIST_USER_PASSWORD so it stays out of shell history.
func runCreateUser(cmd *cobra.Command, args []string) error {
	password := os.Getenv("ASSIST_USER_PASSWORD")
	if password == "" {
		return errors.New("create-user: set ASSIST_USER_PASSWORD")
	}
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	st, err := application.OpenStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := service.NewAuthService(st, nil, log)
	role := model.Role(strings.ToUpper(createUserFlags.role))
	u, err := svc.CreateAccount(context.Background(), createUserFlags.name, createUserFlags.email, password, role)
	if err != nil {
		return err
	}
	log.Info("create-user: ok", "user_id", u.ID, "email", u.Email, "role", u.Role)
	return nil
}
