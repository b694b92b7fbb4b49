package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/timer"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ─── Exam files ──────────────────────────────────────────────────────

// examFile is the YAML form of an exam definition.
type examFile struct {
	Name          string         `yaml:"name"`
	Subject       string         `yaml:"subject"`
	Chapter       string         `yaml:"chapter"`
	Class         string         `yaml:"class"`
	Description   string         `yaml:"description"`
	TotalMarks    int            `yaml:"total_marks"`
	PassingMarks  string         `yaml:"passing_marks"`
	Minutes       int            `yaml:"minutes"`
	Opens         *time.Time     `yaml:"opens"`
	Closes        *time.Time     `yaml:"closes"`
	Attempts      string         `yaml:"attempts"`
	NegativeMarks float64        `yaml:"negative_marks"`
	Examiner      string         `yaml:"examiner"`
	Questions     []questionFile `yaml:"questions"`
}

type questionFile struct {
	Text    string                `yaml:"text"`
	Image   string                `yaml:"image"`
	Options map[string]optionFile `yaml:"options"`
	Answer  string                `yaml:"answer"`
	Marks   float64               `yaml:"marks"`
}

// optionFile accepts either a plain string or {text, image}.
type optionFile struct {
	Text  string `yaml:"text"`
	Image string `yaml:"image"`
}

func (o *optionFile) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		o.Text = n.Value
		return nil
	}
	type plain optionFile
	return n.Decode((*plain)(o))
}

// parseExamFile decodes an exam definition. Structural problems are
// reported here; field limits are left to the server.
func parseExamFile(raw []byte) (*model.CreateExamRequest, error) {
	var f examFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse exam file: %w", err)
	}
	if len(f.Questions) == 0 {
		return nil, errors.New("exam file has no questions")
	}

	req := &model.CreateExamRequest{
		ExamName:           f.Name,
		Subject:            f.Subject,
		Chapter:            f.Chapter,
		ClassName:          f.Class,
		Description:        f.Description,
		TotalMarks:         f.TotalMarks,
		PassingMarks:       f.PassingMarks,
		TotalTimeMinutes:   f.Minutes,
		StartAt:            f.Opens,
		EndAt:              f.Closes,
		AttemptsAllowed:    model.AttemptPolicy(strings.ToLower(f.Attempts)),
		NegativeMarksValue: f.NegativeMarks,
		ExaminerName:       f.Examiner,
		Questions:          make([]model.QuestionRequest, len(f.Questions)),
	}

	for i, q := range f.Questions {
		options := make(model.Options, len(q.Options))
		for key, opt := range q.Options {
			letter := model.OptionLetter(strings.ToUpper(key))
			if !letter.Valid() {
				return nil, fmt.Errorf("question %d: unknown option %q", i+1, key)
			}
			options[letter] = model.Option{Text: opt.Text, ImageURL: opt.Image}
		}
		if err := options.Complete(); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}

		answer := model.OptionLetter(strings.ToUpper(strings.TrimSpace(q.Answer)))
		if !answer.Valid() {
			return nil, fmt.Errorf("question %d: answer must be A, B, C or D", i+1)
		}

		req.Questions[i] = model.QuestionRequest{
			QuestionText:  q.Text,
			ImageURL:      q.Image,
			Options:       options,
			CorrectAnswer: answer,
			Marks:         q.Marks,
		}
	}
	return req, nil
}

func readExamFile(path string) (*model.CreateExamRequest, error) {
	if path == "" {
		return nil, errors.New("an exam file is required (-f)")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseExamFile(raw)
}

// ─── exams / exam ────────────────────────────────────────────────────

func newExamsCmd(a *app) *cobra.Command {
	var page, perPage int
	cmd := &cobra.Command{
		Use:   "exams",
		Short: "List exams you authored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireRole(model.WorkingRoleExaminer); err != nil {
				return err
			}
			exams, state, err := a.client.MyExams(cmd.Context(), page, perPage)
			if err != nil {
				return err
			}
			if len(exams) == 0 {
				a.printf("You have not created any exams.\n")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCODE\tNAME\tQUESTIONS\tMINUTES\tATTEMPTS")
			for _, e := range exams {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					e.ID, e.ExamCode, e.ExamName, e.QuestionCount, e.TotalTimeMinutes, e.AttemptsAllowed)
			}
			_ = tw.Flush()
			a.printPage(state)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", 10, "exams per page")
	return cmd
}

func newExamCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exam",
		Short: "Create, show, update or delete an authored exam",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.requireRole(model.WorkingRoleExaminer)
		},
	}

	var createFile string
	create := &cobra.Command{
		Use:   "create -f FILE",
		Short: "Create an exam from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := readExamFile(createFile)
			if err != nil {
				return err
			}
			exam, err := a.client.CreateExam(cmd.Context(), req)
			if err != nil {
				return err
			}
			a.printf("Created %q with join code %s (id %s)\n", exam.ExamName, exam.ExamCode, exam.ID)
			return nil
		},
	}
	create.Flags().StringVarP(&createFile, "file", "f", "", "exam definition (YAML)")

	show := &cobra.Command{
		Use:   "show EXAM_ID",
		Short: "Show an exam with its answer key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExamID(args[0])
			if err != nil {
				return err
			}
			exam, err := a.client.GetExam(cmd.Context(), id)
			if err != nil {
				return err
			}
			a.printExam(exam)
			return nil
		},
	}

	var updateFile string
	update := &cobra.Command{
		Use:   "update EXAM_ID -f FILE",
		Short: "Replace an exam nobody has attempted yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExamID(args[0])
			if err != nil {
				return err
			}
			req, err := readExamFile(updateFile)
			if err != nil {
				return err
			}
			exam, err := a.client.UpdateExam(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			a.printf("Updated %q (%d questions)\n", exam.ExamName, exam.QuestionCount)
			return nil
		},
	}
	update.Flags().StringVarP(&updateFile, "file", "f", "", "exam definition (YAML)")

	del := &cobra.Command{
		Use:   "delete EXAM_ID",
		Short: "Delete an exam nobody has attempted yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExamID(args[0])
			if err != nil {
				return err
			}
			if err := a.client.DeleteExam(cmd.Context(), id); err != nil {
				return err
			}
			a.printf("Deleted exam %s\n", id)
			return nil
		},
	}

	sessions := &cobra.Command{
		Use:   "sessions EXAM_ID",
		Short: "Show who is taking an exam right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExamID(args[0])
			if err != nil {
				return err
			}
			monitor, err := a.client.ExamSessions(cmd.Context(), id)
			if err != nil {
				return err
			}
			a.printSessions(monitor)
			return nil
		},
	}

	cmd.AddCommand(create, show, update, del, sessions)
	return cmd
}

func parseExamID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid exam id %q", s)
	}
	return id, nil
}

func (a *app) printExam(exam *model.Exam) {
	a.printf("%s (%s)\n", exam.ExamName, exam.ExamCode)
	a.printf("  id:        %s\n", exam.ID)
	a.printf("  subject:   %s\n", exam.Subject)
	a.printf("  time:      %d minutes\n", exam.TotalTimeMinutes)
	a.printf("  attempts:  %s\n", exam.AttemptsAllowed)
	if exam.NegativeMarksValue > 0 {
		a.printf("  negative:  -%g per wrong answer\n", exam.NegativeMarksValue)
	}
	if exam.StartAt != nil {
		a.printf("  opens:     %s\n", exam.StartAt.Local().Format(time.RFC1123))
	}
	if exam.EndAt != nil {
		a.printf("  closes:    %s\n", exam.EndAt.Local().Format(time.RFC1123))
	}

	for i, q := range exam.Questions {
		a.printf("\n%d. %s [%g]\n", i+1, q.QuestionText, q.Weight())
		for _, letter := range model.OptionLetters {
			mark := " "
			if letter == q.CorrectAnswer {
				mark = "*"
			}
			a.printf("  %s %s) %s\n", mark, letter, q.Options[letter].Text)
		}
	}
}

func (a *app) printSessions(m *model.ExamMonitor) {
	if m.InProgress == 0 {
		a.printf("Nobody is taking this exam right now.\n")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tANSWERED\tREMAINING\tSTARTED")
	for _, s := range m.Sessions {
		fmt.Fprintf(tw, "%s\t%d/%d\t%s\t%s\n",
			s.ExamineeName, s.Answered, m.TotalQuestions,
			timer.FormatRemaining(s.RemainingSeconds),
			s.StartedAt.Local().Format("15:04:05"))
	}
	a.outMu.Lock()
	_ = tw.Flush()
	a.outMu.Unlock()
}
