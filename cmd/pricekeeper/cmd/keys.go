package cmd

import (
	"fmt"

	"github.com/solatis/pricekeeper/internal/core/auth"
	"github.com/solatis/pricekeeper/internal/core/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an API key; the key is printed once and only its HMAC is stored",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysCreate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke KEY_ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		database, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := store.RevokeAPIKey(cmd.Context(), args[0]); err != nil {
			return err
		}
		logger.Info("api key revoked", zap.String("key_id", args[0]))
		return nil
	},
}

func init() {
	keysCreateCmd.Flags().String("seller", "", "restrict the key to one seller (empty creates an operator key)")
	keysCreateCmd.Flags().String("secret-id", "", "HMAC secret to sign with (defaults to the only configured secret)")
	keysCmd.AddCommand(keysCreateCmd, keysRevokeCmd)
	rootCmd.AddCommand(keysCmd)
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	sellerID, _ := cmd.Flags().GetString("seller")
	secretID, _ := cmd.Flags().GetString("secret-id")

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if secretID == "" {
		if len(secrets) != 1 {
			return fmt.Errorf("%d HMAC secrets configured, choose one with --secret-id", len(secrets))
		}
		for id := range secrets {
			secretID = id
		}
	}
	secret, ok := secrets[secretID]
	if !ok {
		return fmt.Errorf("%w: %s", auth.ErrUnknownKey, secretID)
	}

	key, hash, err := auth.GenerateAPIKey(secretID, secret)
	if err != nil {
		return err
	}

	database, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	id, err := store.CreateAPIKey(cmd.Context(), sellerID, args[0], hash)
	if err != nil {
		return err
	}
	logger.Info("api key created", zap.String("key_id", id), zap.String("seller_id", sellerID))
	fmt.Fprintf(cmd.OutOrStdout(), "key_id: %s\napi_key: %s\n", id, key)
	return nil
}
