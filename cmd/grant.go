package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"leasecheck/internal/access"
	"leasecheck/internal/logger"
	"leasecheck/internal/server"
	"leasecheck/pkg/models"
)

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant paid access to a user",
	Long: `Grant a monthly or yearly plan to a user without a payment, for support
cases. With STORE_BACKEND=memory the grant only lives for this process, so
the command is meant for the postgres store.`,
	Example: `  leasecheck grant --user-id alice@example.com --plan monthly
  leasecheck grant --user-id bob --plan yearly --email bob@example.com`,
	Args: cobra.NoArgs,
	RunE: runGrant,
}

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Print a signed admin token for the grant endpoint",
	Long: `Sign an HS256 token with ADMIN_JWT_SECRET. Send it as
"Authorization: Bearer <token>" to POST /api/billing/grant-access.`,
	Example: `  leasecheck admin-token --subject support --ttl 1h`,
	Args:    cobra.NoArgs,
	RunE:    runAdminToken,
}

func init() {
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(adminTokenCmd)

	grantCmd.Flags().String("user-id", "", "User to grant access to [REQUIRED]")
	grantCmd.Flags().String("plan", string(models.PlanYearly), "Plan (monthly or yearly)")
	grantCmd.Flags().String("email", "", "Customer email recorded with the grant")
	grantCmd.MarkFlagRequired("user-id")

	adminTokenCmd.Flags().String("subject", "admin", "Token subject")
	adminTokenCmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
}

func runGrant(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("grant")

	userID, _ := cmd.Flags().GetString("user-id")
	planName, _ := cmd.Flags().GetString("plan")
	email, _ := cmd.Flags().GetString("email")

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id must not be empty")
	}
	planName = strings.ToLower(strings.TrimSpace(planName))
	if planName != string(models.PlanMonthly) && planName != string(models.PlanYearly) {
		return fmt.Errorf("invalid plan: %s (must be 'monthly' or 'yearly')", planName)
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if cfg.StoreBackend == "memory" {
		log.Warn().Msg("STORE_BACKEND is memory, the grant will not outlive this command")
	}

	ctx, cancel := createContextWithTimeout(30*time.Second, log)
	defer cancel()

	st, err := buildStack(ctx, cfg, stackOptions{}, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close clients")
		}
	}()

	grant, err := st.gate.GrantAccess(ctx, access.GrantRequest{
		UserID:        userID,
		Plan:          models.ParsePlan(planName),
		CustomerEmail: email,
	})
	if err != nil {
		return fmt.Errorf("failed to grant access: %w", err)
	}

	fmt.Printf("Granted %s access to %s until %s\n", grant.Plan, grant.UserID, grant.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runAdminToken(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("admin-token")

	subject, _ := cmd.Flags().GetString("subject")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if cfg.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET environment variable is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	token, err := server.GenerateAdminToken(cfg.AdminJWTSecret, subject, ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	log.Debug().Str("subject", subject).Dur("ttl", ttl).Msg("Admin token issued")
	fmt.Println(token)
	return nil
}
