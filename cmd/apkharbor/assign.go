package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CaioWing/apkharbor/internal/domain"
	"github.com/CaioWing/apkharbor/internal/service"
)

func newAssignCommand() *cobra.Command {
	var (
		appID        string
		versionCodes []int64
		release      releaseFlags
	)

	cmd := &cobra.Command{
		Use:     "assign",
		Short:   "Move already uploaded version codes to a track",
		Example: `  apkharbor assign --app com.example.app --version-codes 42,43 --track production --rollout 10`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := stderrLogger()
			if err != nil {
				return err
			}
			in, err := release.input(cmd)
			if err != nil {
				return err
			}

			svc, err := newCLIService(release.credentials, log)
			if err != nil {
				return err
			}

			run, err := svc.Assign(cmd.Context(), service.AssignInput{
				ApplicationID: appID,
				VersionCodes:  versionCodes,
				Release:       in,
			})
			if err != nil {
				return report(cmd, domain.ReportAssign, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Assigned version codes %v of %s to %s\n", run.VersionCodes, run.ApplicationID, run.Track)
			return nil
		},
	}

	cmd.Flags().StringVar(&appID, "app", "", "application id")
	cmd.Flags().Int64SliceVar(&versionCodes, "version-codes", nil, "comma-separated version codes")
	release.register(cmd)
	cmd.MarkFlagRequired("app")
	cmd.MarkFlagRequired("version-codes")

	return cmd
}

func init() {
	rootCmd.AddCommand(newAssignCommand())
}
