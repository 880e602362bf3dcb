package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keymeterhq/keymeter/internal/config"
	"github.com/keymeterhq/keymeter/internal/crypto"
	domcred "github.com/keymeterhq/keymeter/internal/domain/credential"
	kvRedis "github.com/keymeterhq/keymeter/internal/kv/redis"
	keysrepo "github.com/keymeterhq/keymeter/internal/repository/keys"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage stored API credentials",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials (masked)",
	RunE:  runKeysList,
}

var keysAddCmd = &cobra.Command{
	Use:   "add <secret>",
	Short: "Store a new API credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysAdd,
}

var keysRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a stored credential by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRm,
}

func init() {
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysAddCmd)
	keysCmd.AddCommand(keysRmCmd)
	rootCmd.AddCommand(keysCmd)
}

// openKeyRepo connects to the store the same way the server does.
// The caller must invoke the returned cleanup func.
func openKeyRepo(ctx context.Context) (*keysrepo.Repo, func(), error) {
	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	store, err := kvRedis.NewStore(kvRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create database store: %w", err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("database not ready: %w", err)
	}

	repo := keysrepo.New(store, cfg.Storage.KeyPrefix)
	if cfg.Storage.EncryptionKey != "" {
		cipher, err := crypto.NewCipher(cfg.Storage.EncryptionKey)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("create cipher: %w", err)
		}
		repo = repo.WithCipher(cipher)
	}

	return repo, store.Close, nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repo, done, err := openKeyRepo(ctx)
	if err != nil {
		return err
	}
	defer done()

	creds, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}

	if len(creds) == 0 {
		fmt.Println("no credentials stored")
		return nil
	}

	fmt.Printf("%-18s %-24s %s\n", "ID", "KEY", "CREATED")
	for _, c := range creds {
		created := time.UnixMilli(c.CreatedAt()).UTC().Format(time.RFC3339)
		fmt.Printf("%-18s %-24s %s\n", c.ID(), c.Masked(), created)
	}
	return nil
}

func runKeysAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repo, done, err := openKeyRepo(ctx)
	if err != nil {
		return err
	}
	defer done()

	cred, err := domcred.New(args[0])
	if err != nil {
		return err
	}

	exists, err := repo.Exists(ctx, cred.Secret())
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		return fmt.Errorf("credential %s is already stored", cred.Masked())
	}

	if err := repo.Add(ctx, cred); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}

	fmt.Printf("added %s (%s)\n", cred.ID(), cred.Masked())
	fmt.Println("a running server picks it up on the next poll")
	return nil
}

func runKeysRm(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repo, done, err := openKeyRepo(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := repo.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}

	fmt.Printf("deleted %s\n", args[0])
	return nil
}
