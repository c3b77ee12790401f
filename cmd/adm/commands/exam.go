package commands

import (
	"strconv"

	"examprep/internal/config"
	"examprep/internal/di"
	"examprep/internal/models"
	"examprep/internal/observability"
	"examprep/internal/services"
	contextutils "examprep/internal/utils"

	"github.com/spf13/cobra"
)

// ExamCommands returns the test generation and inspection commands
func ExamCommands(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	examCmd := &cobra.Command{
		Use:   "exam",
		Short: "Generate and inspect tests",
		Long: `Generate and inspect IELTS and TOEIC tests.

Available commands:
  generate  - Generate and store a new test
  show      - Print a stored test with its answer key`,
	}

	examCmd.AddCommand(generateCmd(cfg, logger))
	examCmd.AddCommand(showCmd(cfg, logger))

	return examCmd
}

func parseExam(s string) (models.ExamKind, error) {
	exam, ok := models.ParseExamKind(s)
	if !ok {
		return "", contextutils.NewErrorf(contextutils.ErrInvalidInput, "unknown exam %q (want ielts or toeic)", s)
	}
	return exam, nil
}

func generateCmd(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	var req models.GenerateRequest

	cmd := &cobra.Command{
		Use:   "generate <ielts|toeic>",
		Short: "Generate and store a new test",
		Example: `  adm exam generate ielts --skill Reading --difficulty medium
  adm exam generate toeic --section "Part 5" --difficulty easy`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exam, err := parseExam(args[0])
			if err != nil {
				return err
			}
			genReq, err := services.NewGenerationRequest(exam, req)
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), cfg, logger, func(sc *di.ServiceContainer) error {
				svc, err := sc.GetExamService()
				if err != nil {
					return err
				}
				test, err := svc.Generate(cmd.Context(), genReq)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), models.NewTestResponse(test))
			})
		},
	}

	cmd.Flags().StringVar(&req.Skill, "skill", "", "IELTS skill (Reading, Listening, Writing, Speaking)")
	cmd.Flags().StringVar(&req.Section, "section", "", "TOEIC section, e.g. \"Part 5\" or \"Listening\"")
	cmd.Flags().StringVar(&req.Level, "level", "", "IELTS level (Academic or General Training)")
	cmd.Flags().StringVar(&req.Difficulty, "difficulty", models.DifficultyMedium, "easy, medium or hard")

	return cmd
}

func showCmd(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ielts|toeic> <test-id>",
		Short: "Print a stored test with its answer key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exam, err := parseExam(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.Atoi(args[1])
			if err != nil || id <= 0 {
				return contextutils.NewErrorf(contextutils.ErrInvalidInput, "invalid test id %q", args[1])
			}
			return withContainer(cmd.Context(), cfg, logger, func(sc *di.ServiceContainer) error {
				svc, err := sc.GetExamService()
				if err != nil {
					return err
				}
				test, err := svc.GetTest(cmd.Context(), exam, id)
				if err != nil {
					return err
				}
				// the stored model carries isCorrect and explanations
				return printJSON(cmd.OutOrStdout(), test)
			})
		},
	}
}
