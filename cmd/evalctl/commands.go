package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/usecase"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <applicationId>",
		Short: "Evaluate an application now, in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				app, err := svc.Applications.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("load application: %w", err)
				}
				pipeline, err := svc.Pipeline()
				if err != nil {
					return err
				}
				fe, err := pipeline.Run(cmd.Context(), app)
				if err != nil {
					return err
				}
				return writeJSON(cmd, httpserver.BuildEvaluationEnvelope(fe))
			})
		},
	}
}

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <applicationId>",
		Short: "Queue an evaluation for the workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				q, err := svc.Queue()
				if err != nil {
					return err
				}
				jobID, err := usecase.NewEvaluateService(svc.Applications, svc.Jobs, q).Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued evaluation of %s as job %s\n", args[0], jobID)
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <applicationId>",
		Short: "Print the stored evaluation of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				fe, err := usecase.NewResultService(svc.Jobs, svc.Evaluations).Evaluation(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd, httpserver.BuildEvaluationEnvelope(fe))
			})
		},
	}
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <jobId>",
		Short: "Print the status of an evaluation job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				job, err := usecase.NewResultService(svc.Jobs, svc.Evaluations).Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd, httpserver.BuildJobEnvelope(job))
			})
		},
	}
}
