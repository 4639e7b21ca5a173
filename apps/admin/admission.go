package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/qlass/backend/core/admission"
)

func (cli *commandLine) submit(ctx context.Context, data admission.NewApplication) error {
	app, err := cli.sess.Submit(ctx, data)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "Application submitted: %s\n", app.ID)
	return cli.printApplication(app)
}

func (cli *commandLine) transition(ctx context.Context, data admission.StageTransition) error {
	app, err := cli.sess.Transition(ctx, data)
	if err != nil {
		return err
	}
	return cli.printApplication(app)
}

func (cli *commandLine) selectApplication(ctx context.Context, id string) error {
	app, err := cli.sess.Select(ctx, id)
	if err != nil {
		return err
	}
	return cli.printApplication(app)
}

func (cli *commandLine) list(filter admission.HistoryFilter) error {
	return cli.printApplications(cli.sess.History(filter))
}

func (cli *commandLine) show(id string) error {
	if id == "" {
		app, ok := cli.sess.Active()
		if !ok {
			return admission.ErrNoActiveApplication
		}
		return cli.printApplication(app)
	}
	app, err := cli.sess.Get(id)
	if err != nil {
		return err
	}
	return cli.printApplication(app)
}

func (cli *commandLine) stats() error {
	stats := cli.sess.Stats()
	if !cli.humanOutput() {
		return cli.printJSON(stats)
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total\t%d\n", stats.Total)
	_, _ = fmt.Fprintf(w, "Verified\t%d\n", stats.Verified)
	_, _ = fmt.Fprintf(w, "Approved\t%d\n", stats.Approved)
	_, _ = fmt.Fprintf(w, "Enrolled\t%d\n", stats.Enrolled)
	_, _ = fmt.Fprintf(w, "Rejected\t%d\n", stats.Rejected)
	_, _ = fmt.Fprintf(w, "This year\t%d\n", stats.ThisYear)
	for _, cc := range stats.ByCourse {
		_, _ = fmt.Fprintf(w, "  %s\t%d\n", cc.Course, cc.Count)
	}
	return w.Flush()
}

// =========================================================================
// Output

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (cli *commandLine) printApplication(app admission.Application) error {
	if !cli.humanOutput() {
		return cli.printJSON(app)
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%s\t%s (%s)\n", app.ID, app.Name, app.Course)
	_, _ = fmt.Fprintf(w, "Contact\t%s, %s\n", app.Email, app.Phone)
	_, _ = fmt.Fprintf(w, "Submitted\t%s\n", app.SubmittedAt.Local().Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintf(w, "Progress\t%d%%\n", app.Stages.Progress())
	for _, stage := range admission.AllStages {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", stage.Title(), app.Stages.Get(stage).Title(), app.StageNote(stage))
	}
	return w.Flush()
}

func (cli *commandLine) printApplications(apps []admission.Application) error {
	if !cli.humanOutput() {
		return cli.printJSON(apps)
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCOURSE\tSTATUS")
	for _, app := range apps {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", app.ID, app.Name, app.Course, app.Summary())
	}
	return w.Flush()
}
