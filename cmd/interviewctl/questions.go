package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"yuzu/interview/internal/questions"
	"yuzu/interview/internal/types"
)

type bankFile struct {
	Questions []types.Question `yaml:"questions" json:"questions"`
}

func newQuestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Work with question banks",
	}

	var file string
	var asJSON bool
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print a question bank (the built-in one by default)",
		Long: `Print a question bank in the file format interviewd loads.

Examples:
  interviewctl questions dump > bank.yaml
  interviewctl questions dump --file bank.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := questions.Load(file)
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), bankFile{Questions: m.AllQuestions()}, !asJSON)
		},
	}
	dump.Flags().StringVarP(&file, "file", "f", "", "question bank file")
	dump.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of YAML")

	validate := &cobra.Command{
		Use:   "validate <bank.yaml>",
		Short: "Check a question bank file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := questions.LoadFile(args[0])
			if err != nil {
				return err
			}
			noAspects := 0
			for _, q := range m.AllQuestions() {
				if len(q.ExpectedAspects) == 0 {
					noAspects++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d questions", m.TotalQuestions())
			if noAspects > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (%d without expected aspects)", noAspects)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.AddCommand(dump, validate)
	return cmd
}
