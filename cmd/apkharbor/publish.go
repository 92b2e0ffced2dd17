package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/CaioWing/apkharbor/internal/apkmeta"
	"github.com/CaioWing/apkharbor/internal/domain"
	"github.com/CaioWing/apkharbor/internal/service"
	"github.com/CaioWing/apkharbor/internal/workspace"
)

type publishFlags struct {
	workspace      string
	files          string
	mapping        string
	expansion      string
	reuseExpansion bool
	release        releaseFlags
}

func newPublishService(client domain.PublisherClient, log *slog.Logger, opts ...service.PublishServiceOption) *service.PublishService {
	return service.NewPublishService(client, workspace.NewGlobFinder(), apkmeta.NewReader(), log, opts...)
}

func newPublishCommand() *cobra.Command {
	var f publishFlags

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload APK or AAB files and assign them to a track",
		Long: `Finds APK or AAB files in the workspace, uploads them together with
their mapping and expansion files in a single edit, assigns them to the
track and commits the edit.`,
		Example: `  apkharbor publish --files "app/build/outputs/**/*.apk" --track beta --rollout 20
  apkharbor publish --files "**/*.aab" --mapping "**/mapping.txt" --track internal --notes en-US="Bug fixes"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := stderrLogger()
			if err != nil {
				return err
			}
			release, err := f.release.input(cmd)
			if err != nil {
				return err
			}

			svc, err := newCLIService(f.release.credentials, log)
			if err != nil {
				return err
			}

			run, err := svc.Publish(cmd.Context(), service.PublishInput{
				Workspace:         f.workspace,
				FilePatterns:      f.files,
				MappingPatterns:   f.mapping,
				ExpansionPatterns: f.expansion,
				ReuseExpansion:    f.reuseExpansion,
				Release:           release,
			})
			if err != nil {
				return report(cmd, domain.ReportUpload, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Published version codes %v of %s to %s\n", run.VersionCodes, run.ApplicationID, run.Track)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.workspace, "workspace", ".", "directory the patterns are resolved against")
	cmd.Flags().StringVar(&f.files, "files", "", "comma-separated glob patterns of the APK or AAB files")
	cmd.Flags().StringVar(&f.mapping, "mapping", "", "comma-separated glob patterns of deobfuscation mapping files")
	cmd.Flags().StringVar(&f.expansion, "expansion", "", "comma-separated glob patterns of expansion (.obb) files")
	cmd.Flags().BoolVar(&f.reuseExpansion, "reuse-expansion", false, "reference the latest uploaded expansion files when none are given")
	f.release.register(cmd)
	cmd.MarkFlagRequired("files")

	return cmd
}

// report prints the multi-line failure report and marks the error as
// already shown.
func report(cmd *cobra.Command, title string, err error) error {
	fmt.Fprint(cmd.ErrOrStderr(), domain.Report(title, err))
	return errReported
}

func init() {
	rootCmd.AddCommand(newPublishCommand())
}
