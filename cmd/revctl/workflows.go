package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/helixir/review-console/internal/protocol"
	"github.com/helixir/review-console/internal/workflow"
)

var manifestFlag string

var workflowsCmd = &cobra.Command{
	Use:     "workflows",
	Aliases: []string{"wf"},
	Short:   "Manage review workflows",
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext()
		defer cancel()

		wfs, err := a.client.ListWorkflows(ctx)
		if err != nil {
			return err
		}
		if len(wfs) == 0 {
			fmt.Println("no workflows")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTEMPLATE\tSTATE\tQUERY")
		for _, wf := range wfs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", wf.ID, wf.Template, wf.State, wf.Query)
		}
		return w.Flush()
	},
}

var workflowsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Launch a workflow from a YAML manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		if manifestFlag == "" {
			return fmt.Errorf("a manifest is required (-f manifest.yaml)")
		}
		raw, err := os.ReadFile(manifestFlag)
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}
		var req protocol.CreateWorkflowRequest
		if err := yaml.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("parse manifest: %w", err)
		}
		if req.Template == "" || req.Query == "" {
			return fmt.Errorf("manifest must set template and query")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext()
		defer cancel()

		wf, err := a.client.CreateWorkflow(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("launched %s (%s)\n", wf.ID, wf.State)
		return nil
	},
}

var workflowsStatusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Show one workflow's state and steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext()
		defer cancel()

		wf, err := a.client.GetWorkflow(ctx, args[0])
		if err != nil {
			return err
		}

		tty := isatty.IsTerminal(os.Stdout.Fd())
		fmt.Printf("%s  %s  %s\n", wf.ID, wf.Template, wf.State)
		fmt.Printf("query: %s\n", wf.Query)
		fmt.Printf("budget: %.2f / %.2f remaining\n", wf.Budget.Remaining, wf.Budget.Total)

		steps := wf.StepHistory
		if wf.CurrentStep != nil {
			known := false
			for _, s := range steps {
				if s.StepID == *wf.CurrentStep {
					known = true
					break
				}
			}
			if !known {
				steps = append(steps, protocol.StepRecord{StepID: *wf.CurrentStep})
			}
		}
		for _, step := range steps {
			status := workflow.StepStatus(step.StepID, wf)
			if tty {
				fmt.Printf("  %-10s %s\n", status, step.StepID)
			} else {
				fmt.Printf("%s\t%s\n", status, step.StepID)
			}
		}
		return nil
	},
}

func interventionCmd(use, short string, action protocol.Action) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <workflow-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			sync := workflow.NewSynchronizer(a.client, workflow.WithSyncLogger(a.log))
			ctx, cancel := cmdContext()
			defer cancel()

			if _, err := sync.Select(ctx, args[0]); err != nil {
				return err
			}
			defer sync.Deselect()

			switch action {
			case protocol.ActionPause:
				err = sync.Pause(ctx)
			case protocol.ActionResume:
				err = sync.Resume(ctx)
			case protocol.ActionCancel:
				err = sync.Cancel(ctx)
			case protocol.ActionApprove:
				err = sync.Approve(ctx)
			}
			if err != nil {
				return err
			}
			if wf := sync.Workflow(); wf != nil {
				fmt.Printf("%s: %s\n", wf.ID, wf.State)
			}
			return nil
		},
	}
}

func init() {
	workflowsCreateCmd.Flags().StringVarP(&manifestFlag, "file", "f", "", "launch manifest (YAML)")

	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsCreateCmd)
	workflowsCmd.AddCommand(workflowsStatusCmd)
	workflowsCmd.AddCommand(interventionCmd("pause", "Pause a running workflow", protocol.ActionPause))
	workflowsCmd.AddCommand(interventionCmd("resume", "Resume a paused or failed workflow", protocol.ActionResume))
	workflowsCmd.AddCommand(interventionCmd("cancel", "Cancel a workflow", protocol.ActionCancel))
	workflowsCmd.AddCommand(interventionCmd("approve", "Approve a human checkpoint", protocol.ActionApprove))
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
