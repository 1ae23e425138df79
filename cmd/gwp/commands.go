package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaakkos/gwp/internal/app"
	"github.com/jaakkos/gwp/internal/chat"
	"github.com/jaakkos/gwp/internal/domain"
	"github.com/jaakkos/gwp/internal/stats"
)

var (
	verbose bool

	loginUser     string
	loginPassword string

	statusJSON bool

	askIDs []int
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the GWP backend and keep the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClientBundle(func(ctx context.Context, b *serverBundle) error {
			password := loginPassword
			if password == "" {
				var err error
				if password, err = readLine(cmd.InOrStdin(), cmd.ErrOrStderr(), "Contraseña: "); err != nil {
					return err
				}
			}
			user, err := b.client.Login(ctx, loginUser, password)
			if err != nil {
				return err
			}
			name := user.Nombre
			if name == "" {
				name = user.Username
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sesión iniciada como %s\n", name)
			if b.pol.IsReadOnly(user.Nombre, user.Username) {
				fmt.Fprintln(cmd.OutOrStdout(), "Acceso de solo lectura")
			}
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClientBundle(func(ctx context.Context, b *serverBundle) error {
			if err := b.client.Logout(); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sesión cerrada")
			return nil
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Ask a running server to reload every collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		pol, err := loadPolicy()
		if err != nil {
			return err
		}
		if err := app.TouchNotifySignal(pol.SignalFilePath()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Refresh signal written to %s\n", pol.SignalFilePath())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the panel summary of the work plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClientBundle(func(ctx context.Context, b *serverBundle) error {
			if err := b.store.RefreshAll(ctx, domain.CollectionPlan, domain.CollectionHitos); err != nil {
				return err
			}
			s := stats.Summarize(b.store.Get(domain.CollectionPlan), b.store.Get(domain.CollectionHitos), time.Now())
			if statusJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			printSummary(cmd.OutOrStdout(), s)
			return nil
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant about the strategic library",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClientBundle(func(ctx context.Context, b *serverBundle) error {
			docs, err := b.store.Refresh(ctx, domain.CollectionRepositorio)
			if err != nil {
				return err
			}
			docs = selectIDs(docs, askIDs)
			turn, err := b.bridge.Ask(ctx, strings.Join(args, " "), docs)
			if err != nil {
				return err
			}
			printTurn(cmd.OutOrStdout(), turn)
			return nil
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "gwp "+Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr in one-shot commands")

	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "User name (required)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (prompted when empty)")
	_ = loginCmd.MarkFlagRequired("user")

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the summary as JSON")

	askCmd.Flags().IntSliceVar(&askIDs, "id", nil, "Limit the context to these library documents (one or two enable deep dive)")
}

// withClientBundle runs fn with the services of a one-shot command. Logs go
// to stderr only with --verbose.
func withClientBundle(fn func(ctx context.Context, b *serverBundle) error) error {
	pol, err := loadPolicy()
	if err != nil {
		return err
	}
	logger := log.New(io.Discard, "", 0)
	if verbose {
		logger = log.New(os.Stderr, logPrefix, log.LstdFlags)
	}
	b, err := newServerBundle(pol, logger)
	if err != nil {
		return err
	}
	defer b.cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	return fn(ctx, b)
}

func readLine(in io.Reader, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// selectIDs keeps the records whose id is in ids. No ids keeps everything.
func selectIDs(records []domain.Record, ids []int) []domain.Record {
	if len(ids) == 0 {
		return records
	}
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Record
	for _, r := range records {
		if want[r.ID()] {
			out = append(out, r)
		}
	}
	return out
}

func printSummary(w io.Writer, s stats.Summary) {
	fmt.Fprintf(w, "Actividades: %d  Completadas: %d  En progreso: %d  Hitos: %d  Avance: %.1f%%\n",
		s.Total, s.Done, s.InProgress, s.Milestones, s.ProgressPct)
	if s.DueThisWeek > 0 {
		level := "normal"
		if s.DeadlineHigh {
			level = "alta"
		}
		fmt.Fprintf(w, "Vencen esta semana: %d (prioridad %s)\n", s.DueThisWeek, level)
	}
	if len(s.ByStatus) > 0 {
		fmt.Fprintln(w, "\nPor estado:")
		for _, c := range s.ByStatus {
			fmt.Fprintf(w, "  %-24s %d\n", c.Label, c.Count)
		}
	}
	if len(s.ByProduct) > 0 {
		fmt.Fprintln(w, "\nPor producto:")
		for _, c := range s.ByProduct {
			fmt.Fprintf(w, "  %-24s %d\n", c.Label, c.Count)
		}
	}
	if len(s.Upcoming) > 0 {
		fmt.Fprintln(w, "\nPróximos vencimientos:")
		for _, r := range s.Upcoming {
			fmt.Fprintf(w, "  %s  %s\n", dateOnly(r.Text("fecha_fin")), r.Text("task_name"))
		}
	}
}

func printTurn(w io.Writer, turn *chat.Turn) {
	fmt.Fprintln(w, turn.Reply.Body)
	if len(turn.Reply.Citations) > 0 {
		ids := make([]string, len(turn.Reply.Citations))
		for i, id := range turn.Reply.Citations {
			ids[i] = fmt.Sprintf("#%d", id)
		}
		fmt.Fprintf(w, "\nFuentes: %s\n", strings.Join(ids, ", "))
	}
	for _, s := range turn.Reply.SuggestedFollowUps {
		fmt.Fprintf(w, "  > %s\n", s)
	}
}

func dateOnly(s string) string {
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}
