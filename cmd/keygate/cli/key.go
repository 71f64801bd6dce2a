package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/keygate/internal/apikey"
	"github.com/faucetdb/keygate/internal/model"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey", "keys"},
		Short:   "Manage API keys",
		Long:    "Create, inspect, update and delete API keys directly in the key store.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyGetCmd())
	cmd.AddCommand(newKeyUpdateCmd())
	cmd.AddCommand(newKeyDeleteCmd())
	cmd.AddCommand(newKeyPurgeCmd())

	return cmd
}

// keyFlags holds the flags shared by key create and key update.
type keyFlags struct {
	description      string
	actions          []string
	indexes          []string
	expiresAt        string
	noExpiry         bool
	clearDescription bool
	jsonOutput       bool
}

func (f *keyFlags) register(cmd *cobra.Command, update bool) {
	cmd.Flags().StringVar(&f.description, "description", "", "Human-readable description")
	cmd.Flags().StringSliceVar(&f.actions, "actions", nil, "Actions the key may perform (comma separated, \"*\" for all)")
	cmd.Flags().StringSliceVar(&f.indexes, "indexes", nil, "Indexes the key may access (comma separated, \"*\" for all)")
	cmd.Flags().StringVar(&f.expiresAt, "expires-at", "", "Expiration date (RFC 3339, YYYY-MM-DDTHH:MM:SS, YYYY-MM-DD HH:MM:SS or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&f.noExpiry, "no-expiry", false, "The key never expires")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagsMutuallyExclusive("expires-at", "no-expiry")
	if update {
		cmd.Flags().BoolVar(&f.clearDescription, "clear-description", false, "Remove the description")
		cmd.MarkFlagsMutuallyExclusive("description", "clear-description")
	}
}

// input converts the flags that were set on the command line into a key
// input. Unset flags stay absent so updates leave those fields untouched.
func (f *keyFlags) input(cmd *cobra.Command) apikey.Input {
	in := apikey.Input{}
	changed := cmd.Flags().Changed

	if changed("description") {
		in[apikey.FieldDescription] = f.description
	}
	if f.clearDescription {
		in[apikey.FieldDescription] = nil
	}
	if changed("actions") {
		in[apikey.FieldActions] = f.actions
	}
	if changed("indexes") {
		in[apikey.FieldIndexes] = f.indexes
	}
	if changed("expires-at") {
		in[apikey.FieldExpiresAt] = f.expiresAt
	}
	if f.noExpiry {
		in[apikey.FieldExpiresAt] = nil
	}
	return in
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var f keyFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Create an API key. --actions, --indexes and either --expires-at or --no-expiry are required.",
		Example: `  keygate key create --actions search --indexes movies --expires-at 2030-01-01
  keygate key create --description "CI" --actions documents.add,documents.get --indexes "*" --no-expiry`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, store, _, err := openKeyService()
			if err != nil {
				return err
			}
			defer store.Close()

			key, err := keys.Create(context.Background(), f.input(cmd))
			if err != nil {
				return keyCommandError(err)
			}
			return printKey(cmd.OutOrStdout(), key, f.jsonOutput)
		},
	}

	f.register(cmd, false)
	return cmd
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, store, _, err := openKeyService()
			if err != nil {
				return err
			}
			defer store.Close()

			list, total, err := keys.List(context.Background(), limit, offset)
			if err != nil {
				return fmt.Errorf("list api keys: %w", err)
			}

			out := cmd.OutOrStdout()
			if wantJSON(jsonOutput) {
				return printJSON(out, model.KeyListResponse{
					Resource: list,
					Meta: model.ResponseMeta{
						Count:  len(list),
						Total:  total,
						Limit:  limit,
						Offset: offset,
					},
				})
			}
			printKeyTable(out, list)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of keys to show (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of keys to skip")

	return cmd
}

// ---------- key get ----------

func newKeyGetCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a single API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, store, _, err := openKeyService()
			if err != nil {
				return err
			}
			defer store.Close()

			key, err := keys.Get(context.Background(), args[0])
			if err != nil {
				return keyCommandError(err)
			}
			return printKey(cmd.OutOrStdout(), key, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// ---------- key update ----------

func newKeyUpdateCmd() *cobra.Command {
	var f keyFlags

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an API key",
		Long:  "Change the fields given on the command line. If any value is invalid the key is left unchanged.",
		Example: `  keygate key update <id> --indexes movies,books
  keygate key update <id> --clear-description --no-expiry`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := f.input(cmd)
			if len(in) == 0 {
				return fmt.Errorf("nothing to update: pass at least one field flag")
			}

			keys, store, _, err := openKeyService()
			if err != nil {
				return err
			}
			defer store.Close()

			key, err := keys.Update(context.Background(), args[0], in)
			if err != nil {
				return keyCommandError(err)
			}
			return printKey(cmd.OutOrStdout(), key, f.jsonOutput)
		},
	}

	f.register(cmd, true)
	return cmd
}

// ---------- key delete ----------

func newKeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm", "revoke"},
		Short:   "Delete an API key",
		Long:    "Delete an API key. Requests using it are rejected immediately.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, store, _, err := openKeyService()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := keys.Delete(context.Background(), args[0]); err != nil {
				return keyCommandError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted API key %s\n", args[0])
			return nil
		},
	}

	return cmd
}

// ---------- key purge ----------

func newKeyPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all expired API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, store, _, err := openKeyService()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := keys.PurgeExpired(context.Background())
			if err != nil {
				return fmt.Errorf("purge expired keys: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired API key(s)\n", n)
			return nil
		},
	}

	return cmd
}

// ---------- output ----------

// keyCommandError turns validation errors into a message naming the field.
func keyCommandError(err error) error {
	if kerr, ok := apikey.AsError(err); ok {
		return fmt.Errorf("%s: %s", kerr.Code, kerr.Error())
	}
	return err
}

func printKey(w io.Writer, key *model.Key, jsonOutput bool) error {
	if wantJSON(jsonOutput) {
		return printJSON(w, key)
	}

	fmt.Fprintf(w, "  Key:         %s\n", key.ID)
	fmt.Fprintf(w, "  Description: %s\n", describe(key.Description))
	fmt.Fprintf(w, "  Actions:     %s\n", joinActions(key.Actions))
	fmt.Fprintf(w, "  Indexes:     %s\n", strings.Join(key.Indexes, ", "))
	fmt.Fprintf(w, "  Expires:     %s\n", formatExpiry(key.ExpiresAt))
	fmt.Fprintf(w, "  Created:     %s\n", key.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Updated:     %s\n", key.UpdatedAt.Format(time.RFC3339))
	return nil
}

func printKeyTable(w io.Writer, keys []model.Key) {
	if len(keys) == 0 {
		fmt.Fprintln(w, "No API keys. Use 'keygate key create' to create one.")
		return
	}

	const row = "%-14s %-24s %-28s %-20s %-20s\n"
	fmt.Fprintf(w, row, "KEY", "DESCRIPTION", "ACTIONS", "INDEXES", "EXPIRES")
	fmt.Fprintf(w, row, "---", "-----------", "-------", "-------", "-------")
	for i := range keys {
		k := &keys[i]
		fmt.Fprintf(w, row,
			truncate(k.ID, 11),
			truncate(describe(k.Description), 24),
			truncate(joinActions(k.Actions), 28),
			truncate(strings.Join(k.Indexes, ","), 20),
			formatExpiry(k.ExpiresAt),
		)
	}
}

func describe(d *string) string {
	if d == nil {
		return "-"
	}
	return *d
}

func joinActions(actions []model.Action) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ",")
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
