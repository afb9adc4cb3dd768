package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ychihi393/chintai-checker-final/internal/domain"
)

func newSeedCmd(global *globalOptions) *cobra.Command {
	var caseID string
	cmd := &cobra.Command{
		Use:   "seed <diagnosis.json>",
		Short: "Store a case from a diagnosis result file and mint a link token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read diagnosis: %w", err)
			}
			var result domain.DiagnosisResult
			if err := json.Unmarshal(data, &result); err != nil {
				return fmt.Errorf("parse diagnosis: %w", err)
			}
			if caseID == "" {
				caseID = uuid.NewString()
			}

			st, err := global.openStack(cmd.Context())
			if err != nil {
				return err
			}
			defer st.close()

			if err := st.store.SaveCase(cmd.Context(), domain.Case{CaseID: caseID, Result: result}); err != nil {
				return err
			}
			token, err := st.store.IssueToken(cmd.Context(), caseID)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
				"caseId":    caseID,
				"caseToken": token,
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case-id", "", "case id to store under (default: random UUID)")
	return cmd
}

type inspection struct {
	UserID     string                   `json:"userId"`
	State      domain.ConversationState `json:"state"`
	ActiveCase *domain.Case             `json:"activeCase"`
	Cases      []domain.CaseRef         `json:"cases"`
}

func newInspectCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <line-user-id>",
		Short: "Print a user's conversation state, active case and case history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := strings.TrimSpace(args[0])
			if userID == "" {
				return errors.New("user id must not be empty")
			}
			ctx := cmd.Context()

			st, err := global.openStack(ctx)
			if err != nil {
				return err
			}
			defer st.close()

			out := inspection{UserID: userID}
			if out.State, err = st.store.GetConversationState(ctx, userID); err != nil {
				return err
			}
			if out.ActiveCase, err = st.store.GetActiveCase(ctx, userID); err != nil {
				return err
			}
			if out.Cases, err = st.store.GetUserCases(ctx, userID, st.store.IndexLimit()); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newKeywordsCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keywords",
		Short: "Print the effective dialog configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dialog, err := global.openDialog()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(dialog)
		},
	}
}
