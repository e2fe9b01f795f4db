package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Issue, list, and revoke API keys for a business",
	}

	cmd.AddCommand(APIKeyCreateCmd())
	cmd.AddCommand(APIKeyListCmd())
	cmd.AddCommand(APIKeyRevokeCmd())

	return cmd
}

func APIKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key",
		RunE:  runAPIKeyCreate,
	}

	cmd.Flags().StringP("business", "b", "", "Business ID (required)")
	cmd.Flags().StringP("name", "n", "", "API key name (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("business")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	businessID, _ := cmd.Flags().GetString("business")
	name, _ := cmd.Flags().GetString("name")
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := newBusinessService(pool)
	raw, key, err := svc.IssueAPIKey(ctx, businessID, name)
	if err != nil {
		return fmt.Errorf("failed to issue API key: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":          key.ID,
			"name":        key.Name,
			"business_id": key.BusinessID,
			"key":         raw,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("API key issued for business %s\n", key.BusinessID)
		fmt.Printf("Key ID: %s\n", key.ID)
		fmt.Printf("Key Name: %s\n", key.Name)
		fmt.Printf("Key: %s\n", raw)
		fmt.Println("\nSave this key now. It cannot be retrieved again.")
	}

	return nil
}

func APIKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for a business",
		RunE: func(cmd *cobra.Command, args []string) error {
			businessID, _ := cmd.Flags().GetString("business")
			outputFormat, _ := cmd.Flags().GetString("output")
			return runAPIKeyList(businessID, outputFormat)
		},
	}

	cmd.Flags().StringP("business", "b", "", "Business ID (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("business")

	return cmd
}

func runAPIKeyList(businessID, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := newBusinessService(pool)
	keys, err := svc.ListAPIKeys(ctx, businessID)
	if err != nil {
		return fmt.Errorf("failed to list API keys: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(keys))
		for i, key := range keys {
			data[i] = map[string]interface{}{
				"id":          key.ID,
				"name":        key.Name,
				"business_id": key.BusinessID,
				"created_at":  key.CreatedAt,
				"revoked":     key.Revoked(),
			}
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(keys) == 0 {
			fmt.Printf("No API keys found for business %s\n", businessID)
			return nil
		}
		fmt.Printf("API keys for business %s:\n", businessID)
		for _, key := range keys {
			status := "active"
			if key.Revoked() {
				status = "revoked"
			}
			fmt.Printf("  %s: %s (%s, created: %s)\n",
				key.ID, key.Name, status, key.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}

	return nil
}

func APIKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			businessID, _ := cmd.Flags().GetString("business")
			return runAPIKeyRevoke(businessID, args[0])
		},
	}

	cmd.Flags().StringP("business", "b", "", "Business ID (required)")
	cmd.MarkFlagRequired("business")

	return cmd
}

func runAPIKeyRevoke(businessID, keyID string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := newBusinessService(pool)
	if err := svc.RevokeAPIKey(ctx, businessID, keyID); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	fmt.Printf("API key %s revoked\n", keyID)
	return nil
}
