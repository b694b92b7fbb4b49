package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/examhall/examhall-backend/internal/leaderboard"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/pagination"
	"github.com/examhall/examhall-backend/internal/scoring"
	"github.com/examhall/examhall-backend/internal/timer"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// ─── Result display ──────────────────────────────────────────────────

// snapshotQuestions rebuilds the graded questions and the examinee's
// answers from an attempt snapshot.
func snapshotQuestions(detail *model.AttemptDetail) ([]model.Question, model.AnswerState) {
	questions := make([]model.Question, len(detail.Questions))
	answers := make(model.AnswerState, len(detail.Questions))
	for i, q := range detail.Questions {
		id := q.ID
		if q.OriginalQuestionID != nil {
			id = *q.OriginalQuestionID
		}
		questions[i] = model.Question{
			ID:            id,
			QuestionText:  q.QuestionText,
			ImageURL:      q.QuestionImageURL,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Marks:         q.Marks,
			QuestionOrder: q.QuestionOrder,
		}
		if q.SelectedAnswer != nil {
			answers.Select(id, *q.SelectedAnswer)
		}
	}
	return questions, answers
}

// printResult shows a graded attempt with its per-question breakdown. The
// breakdown is recomputed from the snapshot; a score that differs from the
// server's means the server clamped it.
func (a *app) printResult(detail *model.AttemptDetail, negativeMark float64) {
	a.printf("\nScore: %g  (%d%%)\n", detail.Score, detail.Percentage)
	a.printf("Correct %d, wrong %d, unanswered %d of %d\n",
		detail.CorrectAnswers, detail.WrongAnswers, detail.UnansweredQuestions, detail.TotalQuestions)
	a.printf("Time taken: %s\n", timer.FormatRemaining(int(detail.TimeTakenSeconds+0.5)))
	if detail.SubmitReason == model.SubmitReasonTimeout {
		a.printf("Submitted automatically when time ran out.\n")
	}

	if len(detail.Questions) == 0 {
		return
	}

	questions, answers := snapshotQuestions(detail)
	preview := scoring.Calculate(questions, answers, negativeMark, scoring.ClampNone)
	if preview.Score != detail.Score {
		a.log.Debug().
			Float64("server", detail.Score).
			Float64("local", preview.Score).
			Msg("Server score differs from local breakdown")
	}

	a.printf("\n")
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tYOURS\tCORRECT\tRESULT\tMARKS")
	for i, r := range preview.Breakdown {
		selected := string(r.Selected)
		if selected == "" {
			selected = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%+g\n", i+1, selected, r.Correct, r.Outcome, r.Awarded)
	}
	a.outMu.Lock()
	_ = tw.Flush()
	a.outMu.Unlock()
}

func (a *app) printPage(state pagination.State) {
	if state.TotalPages <= 1 {
		return
	}
	a.printf("page %d of %d (%d total)", state.Page, state.TotalPages, state.TotalItems)
	if state.HasNext {
		a.printf(", next: --page %d", state.Page+1)
	}
	a.printf("\n")
}

// ─── attempts / result ───────────────────────────────────────────────

func newAttemptsCmd(a *app) *cobra.Command {
	var page, perPage int
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "List your previous attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			attempts, state, err := a.client.PreviousAttempts(cmd.Context(), page, perPage)
			if err != nil {
				return err
			}
			if len(attempts) == 0 {
				a.printf("No attempts yet.\n")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ATTEMPT\tEXAM\tSCORE\t%\tTIME\tSUBMITTED")
			for _, at := range attempts {
				fmt.Fprintf(tw, "%s\t%s\t%g\t%d\t%s\t%s\n",
					at.ID, at.ExamName, at.Score, at.Percentage,
					timer.FormatRemaining(int(at.TimeTakenSeconds+0.5)),
					at.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			_ = tw.Flush()
			a.printPage(state)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", 10, "attempts per page")
	return cmd
}

func newResultCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "result ATTEMPT_ID",
		Short: "Show one attempt with its answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid attempt id %q", args[0])
			}
			detail, err := a.client.AttemptDetail(cmd.Context(), id)
			if err != nil {
				return err
			}
			if detail.ExamName != "" {
				a.printf("%s\n", detail.ExamName)
			}
			a.printResult(detail, detail.NegativeMarksValue)
			return nil
		},
	}
}

// ─── leaderboard ─────────────────────────────────────────────────────

func newLeaderboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard EXAM_ID",
		Short: "Show the ranking of an exam",
		Long: "Shows the ranking of an exam. In the examiner role the full board of an\n" +
			"exam you authored is shown; as examinee you see the board and your standing.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			examID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid exam id %q", args[0])
			}

			var board *leaderboard.Board
			if a.client.Session().Role() == model.WorkingRoleExaminer {
				board, err = a.client.ExaminerLeaderboard(cmd.Context(), examID)
			} else {
				board, err = a.client.Leaderboard(cmd.Context(), examID)
			}
			if err != nil {
				return err
			}

			var me uuid.UUID
			if u := a.client.Session().User(); u != nil {
				me = u.ID
			}
			a.printBoard(leaderboard.Rank(board.Entries, me))
			return nil
		},
	}
}

func (a *app) printBoard(board leaderboard.Board) {
	if len(board.Entries) == 0 {
		a.printf("Nobody has attempted this exam yet.\n")
		return
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tSCORE\tCORRECT\tWRONG\tSKIPPED\tTIME")
	for _, e := range board.Entries {
		marker := ""
		if board.Me.Entry != nil && board.Me.Entry.AttemptID == e.AttemptID {
			marker = " *"
		}
		fmt.Fprintf(tw, "%d\t%s%s\t%g\t%d\t%d\t%d\t%s\n",
			e.Rank, e.Name, marker, e.Score, e.CorrectAnswers, e.WrongAnswers, e.UnansweredQuestions,
			timer.FormatRemaining(int(e.TimeTakenSeconds+0.5)))
	}
	_ = tw.Flush()

	switch board.Me.Status {
	case leaderboard.StatusRanked:
		a.printf("\nYou are ranked #%d.\n", board.Me.Rank)
	default:
		a.printf("\nYou are not on this board.\n")
	}
}
