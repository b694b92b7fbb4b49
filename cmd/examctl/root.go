package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/examhall/examhall-backend/internal/apiclient"
	"github.com/examhall/examhall-backend/internal/logger"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultServer = "http://localhost:8080/api/v1"

// app is the state shared by every command: the loaded profile and a
// client acting for it.
type app struct {
	server      string
	profilePath string
	logLevel    string

	in     *bufio.Reader
	stdin  io.Reader
	out    io.Writer
	errOut io.Writer
	outMu  sync.Mutex

	log     zerolog.Logger
	profile *apiclient.Profile
	client  *apiclient.Client
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{
		in:     bufio.NewReader(in),
		stdin:  in,
		out:    out,
		errOut: errOut,
	}

	envServer := os.Getenv("EXAMCTL_SERVER")

	// Subcommand pre-run hooks add checks on top of profile loading.
	cobra.EnableTraverseRunHooks = true

	cmd := &cobra.Command{
		Use:           "examctl",
		Short:         "Take and author ExamHall exams from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Flags().Changed("server"), envServer)
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.server, "server", defaultServer, "API base URL (env EXAMCTL_SERVER)")
	cmd.PersistentFlags().StringVar(&a.profilePath, "profile", "", "session profile path (default ~/.config/examctl/session.yaml)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level written to stderr")

	cmd.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newRoleCmd(a),
		newTakeCmd(a),
		newAttemptsCmd(a),
		newResultCmd(a),
		newLeaderboardCmd(a),
		newExamsCmd(a),
		newExamCmd(a),
	)

	return cmd
}

// load reads the profile and builds the client. An explicit --server wins
// over the profile, which wins over EXAMCTL_SERVER.
func (a *app) load(serverFlagSet bool, envServer string) error {
	a.log = logger.New(a.errOut, a.logLevel, "pretty")

	if a.profilePath == "" {
		path, err := apiclient.DefaultProfilePath()
		if err != nil {
			return err
		}
		a.profilePath = path
	}

	profile, err := apiclient.LoadProfile(a.profilePath)
	if err != nil {
		return err
	}
	a.profile = profile

	switch {
	case serverFlagSet:
	case profile.Server != "":
		a.server = profile.Server
	case envServer != "":
		a.server = envServer
	}

	a.client = apiclient.New(a.server, profile.Session(), apiclient.WithLogger(a.log))
	return nil
}

// save writes the current session back to the profile.
func (a *app) save() error {
	a.profile.Server = a.server
	a.profile.Capture(a.client.Session())
	if err := a.profile.Save(a.profilePath); err != nil {
		return err
	}
	a.log.Debug().Str("path", a.profilePath).Msg("Profile saved")
	return nil
}

// requireRole refuses to run a command outside the given working role.
func (a *app) requireRole(role model.WorkingRole) error {
	s := a.client.Session()
	if !s.Authenticated() {
		return apiclient.ErrNotAuthenticated
	}
	if s.Role() != role {
		return fmt.Errorf("this command needs the %s role; switch with `examctl role %s`", role, role)
	}
	return nil
}

func (a *app) printf(format string, args ...interface{}) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// prompt reads one trimmed line after printing label.
func (a *app) prompt(label string) (string, error) {
	a.printf("%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo when stdin is a terminal.
func (a *app) promptPassword(label string) (string, error) {
	f, ok := a.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return a.prompt(label)
	}
	a.printf("%s: ", label)
	raw, err := term.ReadPassword(int(f.Fd()))
	a.printf("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

// describe renders an error for the terminal. API errors show their code
// and field messages.
func describe(err error) string {
	var ne *apiclient.NetworkError
	if !errors.As(err, &ne) {
		if errors.Is(err, apiclient.ErrNotAuthenticated) {
			return "not signed in; run `examctl login`"
		}
		return err.Error()
	}
	if ne.Unreachable() {
		return fmt.Sprintf("cannot reach the server (%v)", ne.Err)
	}
	if apiclient.IsUnauthorized(err) && ne.Code != "INVALID_CREDENTIALS" {
		return "your session is no longer valid; run `examctl login`"
	}

	var b strings.Builder
	if ne.Message != "" {
		b.WriteString(ne.Message)
	} else {
		fmt.Fprintf(&b, "request failed with status %d", ne.StatusCode)
	}
	if ne.Code != "" {
		fmt.Fprintf(&b, " [%s]", ne.Code)
	}
	fields := make([]string, 0, len(ne.Fields))
	for field := range ne.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(&b, "\n  %s: %s", field, ne.Fields[field])
	}
	return b.String()
}
