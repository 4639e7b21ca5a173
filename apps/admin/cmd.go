package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/qlass/backend/core/admission"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp         = errors.New("help provided")
	errNoDatabase   = errors.New("migrate requires the postgres storage driver")
	errNotConfirmed = errors.New("reset not confirmed; pass -yes")
)

type commandLine struct {
	db   *sql.DB // only set for `migrate`
	sess *admission.Session
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS...]                          - run a goose migration command (up, down, status...)")
	fmt.Println("  submit -name NAME -email EMAIL -phone PHONE -course COURSE - submit a new application and make it active")
	fmt.Println("  transition -stage STAGE -status STATUS             - set a stage of the active application")
	fmt.Println("  select -id ID                                      - make an application the active one")
	fmt.Println("  clear                                              - deselect the active application")
	fmt.Println("  list [-search TEXT] [-course COURSE]               - list applications, newest first")
	fmt.Println("  show [-id ID]                                      - show an application (default: the active one)")
	fmt.Println("  stats                                              - show the admissions dashboard")
	fmt.Println("  enrolled                                           - list enrolled applicants")
	fmt.Println("  reset -yes                                         - delete every application")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	submitCmd := flag.NewFlagSet("submit", flag.ContinueOnError)
	submitName := submitCmd.String("name", "", "The applicant's full name.")
	submitEmail := submitCmd.String("email", "", "The applicant's email.")
	submitPhone := submitCmd.String("phone", "", "The applicant's phone number.")
	submitCourse := submitCmd.String("course", "", "The course or grade applied for.")

	transitionCmd := flag.NewFlagSet("transition", flag.ContinueOnError)
	transitionStage := transitionCmd.String("stage", "", "verification, approval or enrollment.")
	transitionStatus := transitionCmd.String("status", "", "The stage's new status.")

	selectCmd := flag.NewFlagSet("select", flag.ContinueOnError)
	selectID := selectCmd.String("id", "", "The application ID (APP-XXXXXX).")

	listCmd := flag.NewFlagSet("list", flag.ContinueOnError)
	listSearch := listCmd.String("search", "", "Search in IDs and names.")
	listCourse := listCmd.String("course", "", "Only list applications for this course.")

	showCmd := flag.NewFlagSet("show", flag.ContinueOnError)
	showID := showCmd.String("id", "", "The application ID. Defaults to the active application.")

	resetCmd := flag.NewFlagSet("reset", flag.ContinueOnError)
	resetYes := resetCmd.Bool("yes", false, "Confirm the deletion of every application.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "submit":
		if err := submitCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.submit(ctx, admission.NewApplication{
			Name:   *submitName,
			Email:  *submitEmail,
			Phone:  *submitPhone,
			Course: *submitCourse,
		})

	case "transition":
		if err := transitionCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *transitionStage == "" || *transitionStatus == "" {
			transitionCmd.Usage()
			return errHelp
		}
		return cli.transition(ctx, admission.StageTransition{
			Stage:  admission.Stage(*transitionStage),
			Status: admission.Status(*transitionStatus),
		})

	case "select":
		if err := selectCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *selectID == "" {
			selectCmd.Usage()
			return errHelp
		}
		return cli.selectApplication(ctx, *selectID)

	case "clear":
		cli.sess.ClearActive(ctx)
		_, _ = fmt.Fprintln(cli.out, "Active application cleared")
		return nil

	case "list":
		if err := listCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.list(admission.HistoryFilter{Search: *listSearch, Course: *listCourse})

	case "show":
		if err := showCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.show(*showID)

	case "stats":
		return cli.stats()

	case "enrolled":
		return cli.printApplications(cli.sess.Enrolled())

	case "reset":
		if err := resetCmd.Parse(args[2:]); err != nil {
			return err
		}
		if !*resetYes {
			return errNotConfirmed
		}
		if err := cli.sess.Reset(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cli.out, "Saved state cleared")
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}

// humanOutput reports whether cli.out is a terminal; pipes get JSON.
func (cli *commandLine) humanOutput() bool {
	f, ok := cli.out.(*os.File)
	return ok && isTerminalFunc(int(f.Fd()))
}
