package x402relay

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/surajcodesml/a2a/pkg/audit"
	"github.com/surajcodesml/a2a/pkg/config"
	"github.com/surajcodesml/a2a/pkg/credentials"
	"github.com/surajcodesml/a2a/pkg/payment"
	"github.com/surajcodesml/a2a/pkg/store"
	"github.com/surajcodesml/a2a/pkg/wallet"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the payer's wallet identities",
}

var walletSetCmd = &cobra.Command{
	Use:   "set <identity>",
	Short: "Store a private key for an identity (reads the key from stdin unless --generate)",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletSet,
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities and their addresses",
	RunE:  runWalletList,
}

var walletDeleteCmd = &cobra.Command{
	Use:   "delete <identity>",
	Short: "Remove an identity's key",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalletDelete,
}

var walletGenerate bool

func init() {
	walletSetCmd.Flags().BoolVar(&walletGenerate, "generate", false, "generate a fresh key instead of reading one")
	walletCmd.AddCommand(walletSetCmd, walletListCmd, walletDeleteCmd)
}

type walletStore struct {
	creds *credentials.Store
	audit *audit.Logger
	close func() error
}

func openWalletStore() (*walletStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	creds, err := openCredentials(cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	auditLog, err := audit.New(st.DB())
	if err != nil {
		st.Close()
		return nil, err
	}
	return &walletStore{creds: creds, audit: auditLog, close: st.Close}, nil
}

func runWalletSet(cmd *cobra.Command, args []string) error {
	identity := args[0]
	ws, err := openWalletStore()
	if err != nil {
		return err
	}
	defer ws.close()

	var key string
	if walletGenerate {
		key, err = wallet.GenerateKey()
	} else {
		key, err = readKey(cmd)
	}
	if err != nil {
		return err
	}
	address, err := wallet.AddressOf(key)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := ws.creds.Set(ctx, payment.WalletKey(identity), key); err != nil {
		return fmt.Errorf("storing key: %w", err)
	}
	_ = ws.audit.Log(ctx, audit.EventWalletSet, "", "", identity, map[string]string{"address": address})

	fmt.Fprintf(cmd.OutOrStdout(), "identity %s -> %s\n", identity, address)
	return nil
}

func readKey(cmd *cobra.Command) (string, error) {
	var key string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &key); err != nil {
		return "", fmt.Errorf("reading private key from stdin: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("empty private key")
	}
	return key, nil
}

func runWalletList(cmd *cobra.Command, args []string) error {
	ws, err := openWalletStore()
	if err != nil {
		return err
	}
	defer ws.close()

	rows, err := listWallets(cmd.Context(), ws.creds)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No wallets configured.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tADDRESS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

func listWallets(ctx context.Context, creds *credentials.Store) ([][2]string, error) {
	names, err := creds.List(ctx)
	if err != nil {
		return nil, err
	}
	var rows [][2]string
	for _, name := range names {
		identity, ok := strings.CutPrefix(name, payment.WalletPrefix)
		if !ok {
			continue
		}
		address := "<unreadable>"
		if key, err := creds.Get(ctx, name); err == nil {
			if a, err := wallet.AddressOf(key); err == nil {
				address = a
			}
		}
		rows = append(rows, [2]string{identity, address})
	}
	return rows, nil
}

func runWalletDelete(cmd *cobra.Command, args []string) error {
	identity := args[0]
	ws, err := openWalletStore()
	if err != nil {
		return err
	}
	defer ws.close()

	ctx := cmd.Context()
	if err := ws.creds.Delete(ctx, payment.WalletKey(identity)); err != nil {
		return err
	}
	_ = ws.audit.Log(ctx, audit.EventWalletDel, "", "", identity, "")
	fmt.Fprintf(cmd.OutOrStdout(), "identity %s removed\n", identity)
	return nil
}

