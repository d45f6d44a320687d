package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pavelanni/schoolportal/internal/api"
	"github.com/pavelanni/schoolportal/internal/exam"
	"github.com/pavelanni/schoolportal/internal/model"
	"github.com/pavelanni/schoolportal/internal/store"
)

var errNotSignedIn = errors.New("not signed in: run `schoolportal login` first")

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign this device in to the school API",
		RunE:  runLogin,
	}
	addBackendFlags(cmd)
	cmd.Flags().StringP("email", "e", "", "Account email (prompted when empty)")
	return cmd
}

func logoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the identity stored on this device",
		RunE:  runLogout,
	}
	addBackendFlags(cmd)
	return cmd
}

func testsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tests",
		Short: "List the online tests of your class, newest first",
		RunE:  runTests,
	}
	addBackendFlags(cmd)
	cmd.Flags().String("class", "", "Class ID (teachers; defaults to the first class taught)")
	return cmd
}

func resultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "result",
		Short: "Show the graded result of a submitted test",
		RunE:  runResult,
	}
	addBackendFlags(cmd)
	cmd.Flags().String("test", "", "Test ID (required)")
	_ = cmd.MarkFlagRequired("test")
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	sessions, blobs, err := openSessions(ctx, v)
	if err != nil {
		return err
	}
	defer blobs.Close()

	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())
	email := strings.TrimSpace(v.GetString("email"))
	if email == "" {
		fmt.Fprint(out, "Email: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	password, err := readPassword(out, in)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if email == "" || password == "" {
		return errors.New("email and password are required")
	}

	id, err := apiClient(v).Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := sessions.Save(ctx, store.DeviceSessionID, id); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	fmt.Fprintf(out, "Signed in as %s (%s)\n", id.Profile.DisplayName(), id.Role())
	return nil
}

// readPassword reads without echo from a terminal, or a plain line otherwise.
func readPassword(out io.Writer, in *bufio.Reader) (string, error) {
	fmt.Fprint(out, "Password: ")
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		return string(b), err
	}
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	sessions, blobs, err := openSessions(ctx, v)
	if err != nil {
		return err
	}
	defer blobs.Close()

	if err := sessions.Delete(ctx, store.DeviceSessionID); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}

// deviceIdentity returns the identity saved by `login`.
func deviceIdentity(ctx context.Context, sessions *store.Sessions) (*model.Identity, error) {
	id, err := sessions.Lookup(ctx, store.DeviceSessionID)
	if store.IsNotFound(err) {
		return nil, errNotSignedIn
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return id, nil
}

func runTests(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	sessions, blobs, err := openSessions(ctx, v)
	if err != nil {
		return err
	}
	defer blobs.Close()
	id, err := deviceIdentity(ctx, sessions)
	if err != nil {
		return err
	}

	classID := v.GetString("class")
	if classID == "" {
		if p, ok := id.Profile.(model.TeacherProfile); ok && len(p.ClassIDs) > 0 {
			classID = p.ClassIDs[0]
		} else if classID, err = id.ClassID(); err != nil {
			return err
		}
	}

	tests, err := apiClient(v).ListClassTests(ctx, id, classID)
	if err != nil {
		return fmt.Errorf("list tests: %w", err)
	}
	if len(tests) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tests have been published for this class yet.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBJECT\tQUESTIONS\tDURATION\tCREATED")
	for _, t := range tests {
		duration := "untimed"
		if t.Duration > 0 {
			duration = strconv.Itoa(t.Duration) + "m"
		}
		created := ""
		if !t.CreatedAt.IsZero() {
			created = t.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", t.ID, t.Subject, len(t.Questions), duration, created)
	}
	return tw.Flush()
}

func runResult(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	sessions, blobs, err := openSessions(ctx, v)
	if err != nil {
		return err
	}
	defer blobs.Close()
	id, err := deviceIdentity(ctx, sessions)
	if err != nil {
		return err
	}
	studentID, err := id.StudentID()
	if err != nil {
		return err
	}

	testID := v.GetString("test")
	res, err := apiClient(v).FetchResult(ctx, id, testID, studentID)
	if err != nil {
		if api.IsMalformed(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "No result found for this test.")
			return nil
		}
		return fmt.Errorf("fetch result: %w", err)
	}
	view, err := exam.BuildResultView(res)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No result found for this test.")
		return nil
	}
	printResult(cmd.OutOrStdout(), view)
	return nil
}

func printResult(w io.Writer, view *exam.ResultView) {
	fmt.Fprintf(w, "Score: %s (%d of %d correct)\n",
		strconv.FormatFloat(view.Score, 'f', -1, 64), view.CorrectCount, view.Total)
	if !view.SubmittedAt.IsZero() {
		fmt.Fprintf(w, "Submitted: %s\n", view.SubmittedAt.Local().Format("2006-01-02 15:04"))
	}
	for _, row := range view.Rows {
		mark := "x"
		if row.IsCorrect {
			mark = "+"
		}
		fmt.Fprintf(w, "\n[%s] %d. %s\n", mark, row.Index+1, row.Text)
		if row.Answered {
			fmt.Fprintf(w, "    your answer:    %s\n", row.Chosen)
		} else {
			fmt.Fprintln(w, "    not answered")
		}
		fmt.Fprintf(w, "    correct answer: %s\n", row.Correct)
	}
}
