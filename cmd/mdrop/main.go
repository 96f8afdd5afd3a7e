package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/merkledrop-io/merkledrop/internal/api/handler"
	"github.com/merkledrop-io/merkledrop/pkg/addr"
	"github.com/merkledrop-io/merkledrop/pkg/allowlist"
	"github.com/merkledrop-io/merkledrop/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL  string
	cfgFile    string
	adminToken string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mdrop",
	Short: "merkledrop claim service CLI",
	Long: `mdrop is the command-line interface for the merkledrop claim service.

It builds Merkle allow-list commitments from CSV files, generates inclusion
proofs, submits claims, and drives the operator surface of a running
merkledropd instance.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.mdrop")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8085"
		}
		if adminToken == "" {
			adminToken = viper.GetString("admin_token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.mdrop/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "merkledropd base URL (default http://localhost:8085)")
	rootCmd.PersistentFlags().StringVar(&adminToken, "admin-token", "", "operator bearer token for admin commands")

	rootCmd.AddCommand(merkleRootCmd)
	rootCmd.AddCommand(proofCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(distributionsCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(unpauseCmd)
	rootCmd.AddCommand(setRootCmd)
	rootCmd.AddCommand(wireTokenCmd)
	rootCmd.AddCommand(adminTokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	opts := []client.Option{}
	if adminToken != "" {
		opts = append(opts, client.WithAdminToken(adminToken))
	}
	return client.New(serverURL, opts...)
}

func loadAllowlist(path string) (*allowlist.Allowlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return allowlist.Load(f)
}

// ── merkle-root ──────────────────────────────────────────────────────────────

var merkleRootCmd = &cobra.Command{
	Use:   "merkle-root <allowlist.csv>",
	Short: "Compute the Merkle root of an allow-list CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := loadAllowlist(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("beneficiaries: %d\nroot:          %s\n", l.Len(), l.Root())
		return nil
	},
}

// ── proof ────────────────────────────────────────────────────────────────────

var proofFormat string

var proofCmd = &cobra.Command{
	Use:   "proof <allowlist.csv> <address>",
	Short: "Generate the inclusion proof for one beneficiary",
	Long: `Proof rebuilds the Merkle tree from the allow-list CSV and prints the
inclusion proof for the given address. The CSV must be byte-for-byte the
file that produced the published root; leaf order matters.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := loadAllowlist(args[0])
		if err != nil {
			return err
		}
		beneficiary, err := addr.Parse(args[1])
		if err != nil {
			return err
		}

		proof, amount, err := l.Proof(beneficiary)
		if err != nil {
			return err
		}

		hashes := make([]string, len(proof))
		for i, h := range proof {
			hashes[i] = h.String()
		}

		if proofFormat == "json" {
			out := map[string]any{
				"claimant": beneficiary.String(),
				"amount":   amount.String(),
				"proof":    hashes,
				"root":     l.Root().String(),
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		fmt.Printf("claimant: %s\namount:   %s\nroot:     %s\nproof:\n", beneficiary, amount, l.Root())
		for _, h := range hashes {
			fmt.Printf("  %s\n", h)
		}
		return nil
	},
}

func init() {
	proofCmd.Flags().StringVar(&proofFormat, "format", "text", "Output format: text or json")
}

// ── claim ────────────────────────────────────────────────────────────────────

var claimDistribution int

var claimCmd = &cobra.Command{
	Use:   "claim <allowlist.csv> <address>",
	Short: "Submit a claim for one beneficiary",
	Long: `Claim generates the inclusion proof locally from the allow-list CSV and
submits it to the service. The released amount is whatever tranche the
vesting schedule has unlocked since the last claim; re-running after a
full withdrawal reports a zero release.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := loadAllowlist(args[0])
		if err != nil {
			return err
		}
		beneficiary, err := addr.Parse(args[1])
		if err != nil {
			return err
		}
		proof, amount, err := l.Proof(beneficiary)
		if err != nil {
			return err
		}

		hashes := make([]string, len(proof))
		for i, h := range proof {
			hashes[i] = h.String()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result, err := newClient().SubmitClaim(ctx, client.Claim{
			Claimant:     beneficiary.String(),
			Amount:       amount.String(),
			Proof:        hashes,
			Distribution: claimDistribution,
		})
		if err != nil {
			return err
		}

		fmt.Printf("released:       %s\nclaimed so far: %s\nfully claimed:  %t\n",
			result.Released, result.ClaimedSoFar, result.FullyClaimed)
		return nil
	},
}

func init() {
	claimCmd.Flags().IntVar(&claimDistribution, "distribution", 0, "Distribution index to claim against")
}

// ── status ───────────────────────────────────────────────────────────────────

var statusDistribution int

var statusCmd = &cobra.Command{
	Use:   "status <address>",
	Short: "Show the claim record of a beneficiary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		rec, err := newClient().ClaimRecord(ctx, statusDistribution, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("distribution:   %d\nclaimed so far: %s\nfully claimed:  %t\n",
			rec.Distribution, rec.ClaimedSoFar, rec.FullyClaimed)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusDistribution, "distribution", 0, "Distribution index")
}

// ── distributions ────────────────────────────────────────────────────────────

var distributionsCmd = &cobra.Command{
	Use:   "distributions",
	Short: "List the vesting schedule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		dists, err := newClient().Distributions(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "IDX\tTGE%\tROUNDS\tCLIFF DEADLINE\tPAUSED\tROOT")
		for _, d := range dists {
			root := d.MerkleRoot
			if len(root) > 18 {
				root = root[:18] + "..."
			}
			fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%t\t%s\n",
				d.Index, d.TGEPercent, d.TotalRounds,
				d.CliffDeadline.Format(time.RFC3339), d.Paused, root)
		}
		return w.Flush()
	},
}

// ── admin: pause / unpause / set-root / wire-token ───────────────────────────

var pauseCmd = &cobra.Command{
	Use:   "pause <distribution>",
	Short: "Pause a distribution (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := newClient().Pause(ctx, idx); err != nil {
			return err
		}
		fmt.Printf("distribution %d paused\n", idx)
		return nil
	},
}

var unpauseCmd = &cobra.Command{
	Use:   "unpause <distribution>",
	Short: "Resume a paused distribution (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := newClient().Unpause(ctx, idx); err != nil {
			return err
		}
		fmt.Printf("distribution %d unpaused\n", idx)
		return nil
	},
}

var setRootCmd = &cobra.Command{
	Use:   "set-root <distribution> <root>",
	Short: "Assign the one-time Merkle root of a distribution (admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := newClient().SetMerkleRoot(ctx, idx, args[1]); err != nil {
			return err
		}
		fmt.Printf("distribution %d root set to %s\n", idx, args[1])
		return nil
	},
}

var wireTokenCmd = &cobra.Command{
	Use:   "wire-token",
	Short: "Hand the staged token ledger to the engine (admin, one-time)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		renounced, err := newClient().WireToken(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("token ledger wired (owner renounced: %t)\n", renounced)
		return nil
	},
}

// ── admin-token ──────────────────────────────────────────────────────────────

var (
	adminTokenSecret  string
	adminTokenSubject string
	adminTokenTTL     time.Duration
)

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Issue an operator bearer token from the shared admin secret",
	Long: `Admin-token signs an HS256 bearer token with the same secret the server
holds in admin.secret. Run it on the operator's machine; the secret never
travels over the network.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminTokenSecret == "" {
			adminTokenSecret = viper.GetString("admin_secret")
		}
		if adminTokenSecret == "" {
			return fmt.Errorf("provide the shared secret via --secret or admin_secret in the config")
		}

		tok, err := handler.NewAdminTokens(adminTokenSecret, "merkledrop", adminTokenTTL).Issue(adminTokenSubject)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	adminTokenCmd.Flags().StringVar(&adminTokenSecret, "secret", "", "Shared admin secret (matches the server's admin.secret)")
	adminTokenCmd.Flags().StringVar(&adminTokenSubject, "subject", "operator", "Token subject recorded in audit logs")
	adminTokenCmd.Flags().DurationVar(&adminTokenTTL, "ttl", 12*time.Hour, "Token lifetime")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mdrop version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("mdrop", version)
	},
}

func parseIndex(s string) (int, error) {
	var idx int
	if _, err := fmt.Sscanf(s, "%d", &idx); err != nil || idx < 0 {
		return 0, fmt.Errorf("invalid distribution index %q", s)
	}
	return idx, nil
}
