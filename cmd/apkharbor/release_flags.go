package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CaioWing/apkharbor/internal/config"
	"github.com/CaioWing/apkharbor/internal/notify"
	"github.com/CaioWing/apkharbor/internal/playapi"
	"github.com/CaioWing/apkharbor/internal/service"
)

// releaseFlags are shared by publish and assign.
type releaseFlags struct {
	track       string
	rollout     float64
	releaseName string
	notes       []string
	priority    int64
	credentials string
}

func (f *releaseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.track, "track", "", "release track (internal, alpha, beta, production or a custom track)")
	cmd.Flags().Float64Var(&f.rollout, "rollout", 0, "staged rollout percentage (0-100)")
	cmd.Flags().StringVar(&f.releaseName, "release-name", "", "release name shown in the Play Console")
	cmd.Flags().StringArrayVar(&f.notes, "notes", nil, "release notes as language=text (repeatable)")
	cmd.Flags().Int64Var(&f.priority, "priority", 0, "in-app update priority (0-5)")
	cmd.Flags().StringVar(&f.credentials, "credentials", "", "service account JSON key (default $APKHARBOR_CREDENTIALS_FILE or application default credentials)")
	cmd.MarkFlagRequired("track")
}

// input builds a ReleaseInput; rollout and priority are only set when
// given on the command line.
func (f *releaseFlags) input(cmd *cobra.Command) (service.ReleaseInput, error) {
	notes, err := parseNotes(f.notes)
	if err != nil {
		return service.ReleaseInput{}, err
	}

	in := service.ReleaseInput{
		Track:        f.track,
		ReleaseName:  f.releaseName,
		ReleaseNotes: notes,
	}
	if cmd.Flags().Changed("rollout") {
		rollout := f.rollout
		in.RolloutPercentage = &rollout
	}
	if cmd.Flags().Changed("priority") {
		priority := f.priority
		in.InAppUpdatePriority = &priority
	}
	return in, nil
}

func parseNotes(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	notes := make(map[string]string, len(values))
	for _, v := range values {
		lang, text, ok := strings.Cut(v, "=")
		lang = strings.TrimSpace(lang)
		if !ok || lang == "" {
			return nil, fmt.Errorf("invalid --notes %q, expected language=text", v)
		}
		notes[lang] = text
	}
	return notes, nil
}

// newCLIService wires a PublishService without run history, as used by
// the one-shot commands. Credentials are resolved when the first edit is
// opened, after the request has been validated and its files discovered.
func newCLIService(credentials string, log *slog.Logger) (*service.PublishService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if credentials == "" {
		credentials = cfg.Publisher.CredentialsFile
	}

	client := playapi.NewLazy(playapi.Config{
		CredentialsFile: credentials,
		Endpoint:        cfg.Publisher.Endpoint,
		Timeout:         cfg.Publisher.HTTPTimeout,
		UserAgent:       userAgent(),
	}, log)

	var opts []service.PublishServiceOption
	if cfg.Notify.WebhookURL != "" {
		opts = append(opts, service.WithNotifier(notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout)))
	}
	return newPublishService(client, log, opts...), nil
}
