package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/examhall/examhall-backend/internal/apiclient"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/submission"
	"github.com/examhall/examhall-backend/internal/timer"
	ws "github.com/examhall/examhall-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// ─── Command parsing ─────────────────────────────────────────────────

type takeAction int

const (
	takeAnswer takeAction = iota + 1
	takeClear
	takeSubmit
	takeShow
	takeTime
	takeHelp
)

// takeCommand is one line typed during an exam. Index is zero-based.
type takeCommand struct {
	action takeAction
	index  int
	letter model.OptionLetter
}

// parseTakeCommand understands "3 b", "3b", "clear 3", "submit", "show",
// "time" and "help". total is the number of questions.
func parseTakeCommand(line string, total int) (takeCommand, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return takeCommand{}, errors.New("empty command")
	}

	switch fields[0] {
	case "submit", "s":
		return takeCommand{action: takeSubmit}, nil
	case "show", "ls":
		return takeCommand{action: takeShow}, nil
	case "time", "t":
		return takeCommand{action: takeTime}, nil
	case "help", "?":
		return takeCommand{action: takeHelp}, nil
	case "clear", "c":
		if len(fields) != 2 {
			return takeCommand{}, errors.New("usage: clear <question>")
		}
		idx, err := questionIndex(fields[1], total)
		if err != nil {
			return takeCommand{}, err
		}
		return takeCommand{action: takeClear, index: idx}, nil
	}

	num, letter := fields[0], ""
	switch len(fields) {
	case 1:
		if n := len(num); n > 1 {
			num, letter = num[:n-1], num[n-1:]
		}
	case 2:
		letter = fields[1]
	default:
		return takeCommand{}, fmt.Errorf("unknown command %q", line)
	}

	idx, err := questionIndex(num, total)
	if err != nil {
		return takeCommand{}, err
	}
	opt := model.OptionLetter(strings.ToUpper(letter))
	if !opt.Valid() {
		return takeCommand{}, fmt.Errorf("option must be A, B, C or D, got %q", letter)
	}
	return takeCommand{action: takeAnswer, index: idx, letter: opt}, nil
}

func questionIndex(s string, total int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a question number", s)
	}
	if n < 1 || n > total {
		return 0, fmt.Errorf("question %d does not exist (1-%d)", n, total)
	}
	return n - 1, nil
}

const takeHelpText = `Commands:
  <n> <A-D>   answer question n (also "<n><A-D>")
  clear <n>   clear the answer to question n
  show        list questions and your answers
  time        show the remaining time
  submit      submit now
`

// ─── take ────────────────────────────────────────────────────────────

func newTakeCmd(a *app) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "take CODE",
		Short: "Take an exam by its join code",
		Long: "Fetches the exam for CODE and starts the countdown. Answers are typed as\n" +
			"\"<question> <option>\". The exam is submitted on `submit`, at end of input,\n" +
			"or automatically when time runs out.\n\n" +
			"With --live the server keeps the clock and saves every answer as it is given,\n" +
			"so a dropped connection can be resumed by running the command again.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireRole(model.WorkingRoleExaminee); err != nil {
				return err
			}
			paper, err := a.client.ExamByCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if live {
				return a.takeLive(cmd.Context(), paper)
			}
			return a.take(cmd.Context(), paper)
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "let the server keep time and save answers as you go")
	return cmd
}

// readLines feeds input lines to a channel until EOF or until done is closed.
func (a *app) readLines(done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := a.in.ReadString('\n')
			if strings.TrimSpace(line) != "" {
				select {
				case lines <- line:
				case <-done:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

// take runs the exam with a local countdown and submits over REST.
func (a *app) take(ctx context.Context, paper *model.ExamPaper) error {
	exam := paper.Exam()
	answers := model.AnswerState{}
	guard := &submission.Guard{}

	var (
		mu      sync.Mutex
		elapsed float64
	)
	timeUp := make(chan struct{})

	countdown := timer.New(float64(paper.TotalTimeMinutes),
		func(minutes float64) {
			mu.Lock()
			elapsed = minutes
			mu.Unlock()
		},
		func() { close(timeUp) },
	)
	countdown.Start()
	defer countdown.Stop()

	a.printPaper(paper)
	a.printf("\nYou have %s. Type `help` for commands.\n", timer.FormatRemaining(countdown.Initial()))

	submit := func(reason model.SubmitReason) error {
		countdown.Stop()
		mu.Lock()
		taken := elapsed
		snapshot := answers.Clone()
		mu.Unlock()
		if reason == model.SubmitReasonTimeout {
			taken = float64(paper.TotalTimeMinutes)
		}

		payload, err := submission.Assemble(exam, snapshot, taken)
		if err != nil {
			return err
		}
		detail, err := a.client.SubmitExam(ctx, payload)
		if err != nil {
			return err
		}
		a.printResult(detail, paper.NegativeMarksValue)
		return nil
	}

	done := make(chan struct{})
	defer close(done)
	lines := a.readLines(done)
	for {
		select {
		case <-ctx.Done():
			a.printf("\nExam abandoned; nothing was submitted.\n")
			return ctx.Err()

		case <-timeUp:
			if !guard.TryMark() {
				continue
			}
			a.printf("\nTime is up. Submitting your answers...\n")
			return submit(model.SubmitReasonTimeout)

		case line, ok := <-lines:
			if !ok {
				if !guard.TryMark() {
					return nil
				}
				a.printf("\nEnd of input. Submitting your answers...\n")
				return submit(model.SubmitReasonManual)
			}

			c, err := parseTakeCommand(line, len(exam.Questions))
			if err != nil {
				a.printf("%v\n", err)
				continue
			}
			switch c.action {
			case takeAnswer:
				mu.Lock()
				answers.Select(exam.Questions[c.index].ID, c.letter)
				mu.Unlock()
				a.printf("Q%d: %s\n", c.index+1, c.letter)
			case takeClear:
				mu.Lock()
				answers.Clear(exam.Questions[c.index].ID)
				mu.Unlock()
				a.printf("Q%d cleared\n", c.index+1)
			case takeShow:
				mu.Lock()
				snapshot := answers.Clone()
				mu.Unlock()
				a.printAnswers(exam, snapshot)
			case takeTime:
				a.printf("%s remaining\n", timer.FormatRemaining(countdown.Remaining()))
			case takeHelp:
				a.printf("%s", takeHelpText)
			case takeSubmit:
				if !guard.TryMark() {
					continue
				}
				return submit(model.SubmitReasonManual)
			}
		}
	}
}

// takeLive runs the exam over the server-timed WebSocket stream.
func (a *app) takeLive(ctx context.Context, paper *model.ExamPaper) error {
	started, err := a.client.StartExam(ctx, paper.ID)
	if err != nil {
		return err
	}
	if started.Paper != nil {
		paper = started.Paper
	}
	exam := paper.Exam()

	stream, err := a.client.OpenExamStream(ctx, paper.ID)
	if err != nil {
		return err
	}
	defer stream.Close()

	events := make(chan *apiclient.StreamEvent)
	readErr := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			ev, err := stream.Next()
			if err != nil {
				readErr <- err
				return
			}
			events <- ev
		}
	}()

	a.printPaper(paper)
	if started.Resumed {
		a.printf("\nResuming your session.\n")
	}

	answers := model.AnswerState{}
	remaining := 0
	done := make(chan struct{})
	defer close(done)
	lines := a.readLines(done)
	for {
		select {
		case <-ctx.Done():
			a.printf("\nDisconnected. Run the command again to resume before time runs out.\n")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				err := <-readErr
				return fmt.Errorf("exam stream closed: %w", err)
			}
			switch ev.Event {
			case ws.EventReady:
				if ev.Session != nil {
					answers = liveAnswers(ev.Session.Answers)
					remaining = ev.Session.RemainingSeconds
				}
				a.printf("You have %s. %d answered so far. Type `help` for commands.\n",
					timer.FormatRemaining(remaining), len(answers))
			case ws.EventTick:
				remaining = ev.RemainingSeconds
				if remaining > 0 && (remaining%300 == 0 || remaining == 60 || remaining == 10) {
					a.printf("%s remaining\n", ev.Remaining)
				}
			case ws.EventSaved:
				if idx := questionPosition(exam, ev.QuestionID); idx >= 0 {
					if ev.Option == "" {
						answers.Clear(ev.QuestionID)
						a.printf("Q%d cleared (saved)\n", idx+1)
					} else {
						answers.Select(ev.QuestionID, ev.Option)
						a.printf("Q%d: %s (saved)\n", idx+1, ev.Option)
					}
				}
			case ws.EventTimeUp:
				a.printf("\nTime is up. The server is grading your answers...\n")
			case ws.EventGraded:
				if ev.Attempt == nil {
					return errors.New("graded event without an attempt")
				}
				a.printResult(ev.Attempt, paper.NegativeMarksValue)
				return nil
			case ws.EventError:
				a.printf("%s [%s]\n", ev.Error, ev.Code)
			}

		case line, ok := <-lines:
			if !ok {
				a.printf("\nEnd of input. Submitting your answers...\n")
				if err := stream.Submit(); err != nil {
					return err
				}
				lines = nil
				continue
			}
			c, err := parseTakeCommand(line, len(exam.Questions))
			if err != nil {
				a.printf("%v\n", err)
				continue
			}
			switch c.action {
			case takeAnswer:
				err = stream.Answer(exam.Questions[c.index].ID, c.letter)
			case takeClear:
				err = stream.Clear(exam.Questions[c.index].ID)
			case takeShow:
				a.printAnswers(exam, answers)
			case takeTime:
				a.printf("%s remaining\n", timer.FormatRemaining(remaining))
			case takeHelp:
				a.printf("%s", takeHelpText)
			case takeSubmit:
				err = stream.Submit()
			}
			if err != nil {
				return fmt.Errorf("send to exam stream: %w", err)
			}
		}
	}
}

func questionPosition(exam *model.Exam, id uuid.UUID) int {
	for i, q := range exam.Questions {
		if q.ID == id {
			return i
		}
	}
	return -1
}

// liveAnswers converts the answers of a resumed session.
func liveAnswers(raw map[string]model.OptionLetter) model.AnswerState {
	answers := make(model.AnswerState, len(raw))
	for id, letter := range raw {
		qid, err := uuid.Parse(id)
		if err != nil || !letter.Valid() {
			continue
		}
		answers.Select(qid, letter)
	}
	return answers
}

// ─── Output ──────────────────────────────────────────────────────────

func (a *app) printPaper(paper *model.ExamPaper) {
	a.printf("%s (%s)\n", paper.ExamName, paper.ExamCode)
	if paper.Subject != "" {
		a.printf("%s", paper.Subject)
		if paper.Chapter != "" {
			a.printf(" / %s", paper.Chapter)
		}
		a.printf("\n")
	}
	a.printf("%d questions, %d minutes", len(paper.Questions), paper.TotalTimeMinutes)
	if paper.NegativeMarksValue > 0 {
		a.printf(", -%g per wrong answer", paper.NegativeMarksValue)
	}
	a.printf("\n")
	if paper.Description != "" {
		a.printf("\n%s\n", paper.Description)
	}

	for i, q := range paper.Questions {
		a.printf("\n%d. %s", i+1, q.QuestionText)
		if q.Marks > 0 && q.Marks != 1 {
			a.printf(" [%g marks]", q.Marks)
		}
		a.printf("\n")
		if q.ImageURL != "" {
			a.printf("   image: %s\n", q.ImageURL)
		}
		for _, letter := range model.OptionLetters {
			opt := q.Options[letter]
			text := opt.Text
			if opt.ImageURL != "" {
				text = strings.TrimSpace(text + " (image: " + opt.ImageURL + ")")
			}
			a.printf("   %s) %s\n", letter, text)
		}
	}
}

func (a *app) printAnswers(exam *model.Exam, answers model.AnswerState) {
	for i, q := range exam.Questions {
		mark := "-"
		if letter, ok := answers.Selected(q.ID); ok {
			mark = string(letter)
		}
		a.printf("%3d: %s\n", i+1, mark)
	}
	a.printf("%d of %d answered\n", len(answers), len(exam.Questions))
}
