package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aryan0dhankhar/storefront/internal/ingest"
	"github.com/aryan0dhankhar/storefront/internal/routing"
	"github.com/aryan0dhankhar/storefront/internal/security"
	"github.com/aryan0dhankhar/storefront/internal/security/auth"
	"github.com/aryan0dhankhar/storefront/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "storefront",
		Short:        "Storefront theme and operations CLI",
		SilenceUsage: true,
	}
	root.AddCommand(
		newThemeCmd(),
		newRouteCmd(),
		newRenderCmd(),
		newTokenCmd(),
		newCacheCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the CLI version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

// Theme commands

func newThemeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "theme", Short: "Validate, package and install themes"}

	var noMinify bool
	validate := &cobra.Command{
		Use:   "validate <zip|dir>",
		Short: "Run the upload checks on a theme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readTheme(args[0])
			if err != nil {
				return err
			}
			opts := ingest.DefaultOptions()
			opts.Minify = !noMinify
			theme, err := ingest.NewProcessor(opts, nil).ProcessThemeZip(data, "local")
			var verr *ingest.ValidationError
			if errors.As(err, &verr) {
				printIssues(cmd.OutOrStdout(), verr.Issues)
				return fmt.Errorf("theme is invalid: %d issues", len(verr.Issues))
			}
			if err != nil {
				return err
			}
			printIssues(cmd.OutOrStdout(), theme.Warnings)
			fmt.Fprintf(cmd.OutOrStdout(), "✓ theme valid: %d files, %d minified, %d bytes saved\n",
				theme.Stats.Files, theme.Stats.Minified, theme.Stats.SavedBytes)
			return nil
		},
	}
	validate.Flags().BoolVar(&noMinify, "no-minify", false, "skip the minification pass")

	pkg := &cobra.Command{
		Use:   "package <dir> <zip>",
		Short: "Zip a theme directory for upload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := ingest.PackageDir(afero.NewOsFs(), args[0])
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[1], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ wrote %s (%d bytes)\n", args[1], len(data))
			return nil
		},
	}

	install := &cobra.Command{
		Use:   "install <store-id> <zip|dir>",
		Short: "Upload a theme to a running server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readTheme(args[1])
			if err != nil {
				return err
			}
			var result map[string]any
			status, err := apiCall(http.MethodPost, "/stores/"+url.PathEscape(args[0])+"/theme", "application/zip", bytes.NewReader(data), &result)
			if err != nil {
				return err
			}
			if status != http.StatusCreated {
				return fmt.Errorf("install failed (%d): %v", status, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ theme %v installed: %v files\n", result["themeId"], result["files"])
			return nil
		},
	}

	cmd.AddCommand(validate, pkg, install)
	return cmd
}

// readTheme returns zip bytes for a .zip file or a theme directory
func readTheme(p string) ([]byte, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return ingest.PackageDir(afero.NewOsFs(), p)
	}
	return os.ReadFile(p)
}

func printIssues(out io.Writer, issues []ingest.Issue) {
	if len(issues) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEVERITY\tCATEGORY\tFILE\tMESSAGE")
	for _, i := range issues {
		file := i.Path
		if i.Line > 0 {
			file = fmt.Sprintf("%s:%d", i.Path, i.Line)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", i.Severity, i.Category, file, i.Message)
	}
	w.Flush()
}

// Route command

func newRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route <path>",
		Short: "Show which page a storefront path renders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid path: %w", err)
			}
			opts, name := routing.MatchRoute(u.Path, u.Query())
			if name == "" {
				name = "(none)"
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "path\t%s\n", routing.Normalize(u.Path))
			fmt.Fprintf(w, "route\t%s\n", name)
			fmt.Fprintf(w, "page type\t%s\n", opts.PageType)
			for _, kv := range [][2]string{
				{"handle", opts.Handle},
				{"collection", opts.CollectionHandle},
				{"search", opts.SearchTerm},
				{"checkout", opts.CheckoutToken},
				{"next", opts.NextToken},
			} {
				if kv[1] != "" {
					fmt.Fprintf(w, "%s\t%s\n", kv[0], kv[1])
				}
			}
			return w.Flush()
		},
	}
}

// Token command

func newTokenCmd() *cobra.Command {
	var (
		storeID string
		role    string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{Use: "token", Short: "Manage API tokens"}
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Sign a token with the configured JWT secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret is not configured")
			}
			if _, ok := security.RolePermissions[security.Role(role)]; !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			tok, err := auth.NewTokenManager(cfg.JWTSecret, "storefront").GenerateToken(storeID, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	mint.Flags().StringVar(&storeID, "store", "", "store the token is scoped to")
	mint.Flags().StringVar(&role, "role", string(security.RoleStoreOwner), "admin, store_owner or editor")
	mint.Flags().StringVar(&subject, "subject", "cli", "token subject")
	mint.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	save := &cobra.Command{
		Use:   "save <token>",
		Short: "Store a token for later API calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := saveToken(args[0]); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ token saved")
			return nil
		},
	}
	cmd.AddCommand(mint, save)
	return cmd
}

// Cache commands

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Inspect and clear server caches"}
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts per cache category",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var result map[string]struct {
				Total   int `json:"total"`
				Active  int `json:"active"`
				Expired int `json:"expired"`
			}
			status, err := apiCall(http.MethodGet, "/cache/stats", "", nil, &result)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("request failed with status %d", status)
			}
			names := make([]string, 0, len(result))
			for name := range result {
				names = append(names, name)
			}
			sort.Strings(names)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tACTIVE\tEXPIRED\tTOTAL")
			for _, name := range names {
				s := result[name]
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", name, s.Active, s.Expired, s.Total)
			}
			return w.Flush()
		},
	}
	invalidate := &cobra.Command{
		Use:   "invalidate <store-id>",
		Short: "Drop every cached entry of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result map[string]any
			status, err := apiCall(http.MethodPost, "/stores/"+url.PathEscape(args[0])+"/cache/invalidate", "", nil, &result)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("invalidate failed (%d): %v", status, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ invalidated: %v\n", result)
			return nil
		},
	}
	cmd.AddCommand(stats, invalidate)
	return cmd
}

// Helper functions

func getAPIURL() string {
	if u := os.Getenv("STOREFRONT_API"); u != "" {
		return strings.TrimSuffix(u, "/")
	}
	return "http://localhost:8080/admin"
}

func apiCall(method, path, contentType string, body io.Reader, out any) (int, error) {
	req, err := http.NewRequest(method, getAPIURL()+path, body)
	if err != nil {
		return 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	addAuthHeader(req)

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".storefront", "token")
}

func saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(), []byte(strings.TrimSpace(token)), 0o600)
}

func loadToken() string {
	if t := os.Getenv("STOREFRONT_TOKEN"); t != "" {
		return t
	}
	data, _ := os.ReadFile(tokenFile())
	return strings.TrimSpace(string(data))
}

func addAuthHeader(req *http.Request) {
	if token := loadToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
