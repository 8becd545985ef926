package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/unclebandit/mailcampaign/internal/app"
	"github.com/unclebandit/mailcampaign/internal/config"
	"github.com/unclebandit/mailcampaign/internal/contacts"
	"github.com/unclebandit/mailcampaign/internal/controller"
	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/mail"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/service"
)

var rootCmd = &cobra.Command{
	Use:           "campaign",
	Short:         "Generate and send personalized email campaigns from a contact list",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Show the columns, suggested mapping and warnings of a contact list",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Generate one draft per contact and send them",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaign,
}

var runFlags struct {
	mapping  map[string]string
	purpose  string
	cta      string
	dryRun   bool
	host     string
	port     int
	secure   bool
	user     string
	pass     string
	fromName string
}

func init() {
	f := runCmd.Flags()
	f.StringToStringVar(&runFlags.mapping, "map", nil, "field=column overrides, e.g. --map email=work_email")
	f.StringVar(&runFlags.purpose, "purpose", "", "what the email is for")
	f.StringVar(&runFlags.cta, "cta", "", "call to action")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "generate drafts and print them without sending")
	f.StringVar(&runFlags.host, "smtp-host", "", "SMTP host, empty for Gmail")
	f.IntVar(&runFlags.port, "smtp-port", 0, "SMTP port, 0 for the provider default")
	f.BoolVar(&runFlags.secure, "smtp-secure", false, "implicit TLS for custom hosts")
	f.StringVar(&runFlags.user, "smtp-user", os.Getenv("MAILCAMPAIGN_SMTP_USER"), "SMTP user and sender address")
	f.StringVar(&runFlags.pass, "smtp-pass", os.Getenv("MAILCAMPAIGN_SMTP_PASS"), "SMTP password")
	f.StringVar(&runFlags.fromName, "from-name", "", "sender display name")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadList(path string) (*contacts.List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return contacts.LoadNamed(path, data)
}

func runParse(cmd *cobra.Command, args []string) error {
	list, err := loadList(args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"headers":           list.Headers,
		"delimiter":         list.Delimiter,
		"rows":              len(list.Rows),
		"warnings":          list.Warnings,
		"suggested_mapping": contacts.Suggest(list.Headers),
	})
}

func runCampaign(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, "console")

	list, err := loadList(args[0])
	if err != nil {
		return err
	}
	mapping := mergeMapping(contacts.Suggest(list.Headers), runFlags.mapping)
	records, err := mapping.Resolve(list)
	if err != nil {
		return err
	}

	deps, err := app.NewDeps(cfg, log)
	if err != nil {
		return err
	}
	cc := controller.NewCampaignController(uuid.NewString(), records, service.TemplateConfig{
		EmailPurpose: runFlags.purpose,
		CallToAction: runFlags.cta,
	}, deps)

	ctx := cmd.Context()
	st, err := cc.Start(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Int("generated", st.Generation.Successful).
		Int("failed", st.Generation.Failed).
		Msg("generation finished")
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.Status != model.StatusCompleted {
		return fmt.Errorf("generation ended in %s: %s", st.Status, st.Error)
	}

	if runFlags.dryRun {
		return printJSON(cmd.OutOrStdout(), cc.Tasks())
	}

	st, err = cc.Send(ctx, mail.Settings{
		Host:     runFlags.host,
		Port:     runFlags.port,
		Secure:   runFlags.secure,
		Auth:     mail.Auth{User: runFlags.user, Pass: runFlags.pass},
		FromName: runFlags.fromName,
	})
	if err != nil {
		return err
	}
	if st.Status != model.StatusCompletedSend {
		return fmt.Errorf("send ended in %s: %s", st.Status, st.Error)
	}

	report, err := cc.Report()
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}

// mergeMapping applies field=column overrides on top of the suggested mapping. An empty
// column unmaps the field.
func mergeMapping(suggested contacts.FieldMapping, overrides map[string]string) contacts.FieldMapping {
	m := contacts.FieldMapping{}
	for f, h := range suggested {
		m[f] = h
	}
	for f, h := range overrides {
		if h == "" {
			delete(m, model.Field(f))
			continue
		}
		m[model.Field(contacts.NormalizeHeader(f))] = contacts.NormalizeHeader(h)
	}
	return m
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
