package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/convoflow/convoflow/internal/config"
	"github.com/convoflow/convoflow/internal/logger"
	"github.com/convoflow/convoflow/internal/repository"
	"github.com/convoflow/convoflow/internal/service"
)

func BusinessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "business",
		Short: "Manage businesses",
		Long:  "Create and list businesses (tenants)",
	}

	cmd.AddCommand(BusinessCreateCmd())
	cmd.AddCommand(BusinessListCmd())

	return cmd
}

func BusinessCreateCmd() *cobra.Command {
	var website string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new business",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runBusinessCreate(args[0], website, outputFormat)
		},
	}

	cmd.Flags().StringVar(&website, "website", "", "Business website URL")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runBusinessCreate(name, website, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := newBusinessService(pool)
	business, err := svc.CreateBusiness(ctx, name, website)
	if err != nil {
		return fmt.Errorf("failed to create business: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":         business.ID,
			"name":       business.Name,
			"website":    business.Website,
			"created_at": business.CreatedAt,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Business created: %s (%s)\n", business.Name, business.ID)
	}

	return nil
}

func BusinessListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all businesses",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runBusinessList(outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runBusinessList(outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := newBusinessService(pool)
	businesses, err := svc.ListBusinesses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list businesses: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(businesses))
		for i, b := range businesses {
			data[i] = map[string]interface{}{
				"id":         b.ID,
				"name":       b.Name,
				"website":    b.Website,
				"created_at": b.CreatedAt,
			}
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(businesses) == 0 {
			fmt.Println("No businesses found")
			return nil
		}
		fmt.Println("Businesses:")
		for _, b := range businesses {
			fmt.Printf("  %s: %s (created: %s)\n", b.ID, b.Name, b.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}

	return nil
}

func newBusinessService(pool *pgxpool.Pool) *service.BusinessService {
	return service.NewBusinessService(
		repository.NewBusinessRepository(pool),
		repository.NewAPIKeyRepository(pool),
		logger.NewNop(),
	)
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
