// Command sitebuilder drives the site builder core against a running
// sitebuilderd: pipeline runs, page versions, element edits and skills.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/Hamiltonwise/signalsai-sub006/internal/apiclient"
	"github.com/Hamiltonwise/signalsai-sub006/internal/cli"
	"github.com/Hamiltonwise/signalsai-sub006/internal/editsession"
	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

func main() {
	args, err := cli.ParseArgs(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sitebuilder:", err)
		cli.Usage(os.Stderr)
		os.Exit(2)
	}
	if err := run(args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "sitebuilder:", err)
		os.Exit(1)
	}
}

type app struct {
	args   *cli.Args
	client *apiclient.Client
	pages  *pages.Manager
	logger logging.Logger
	out    io.Writer
}

func run(args *cli.Args, out io.Writer) error {
	logger := logging.NewLogger(os.Stderr, "sitebuilder", logging.ParseLevel(args.LogLevel))
	client, err := apiclient.New(args.APIURL, nil, logger)
	if err != nil {
		return err
	}
	a := &app{args: args, client: client, pages: pages.NewManager(client, logger), logger: logger, out: out}

	ctx, cancel := context.WithTimeout(context.Background(), args.Timeout)
	defer cancel()

	switch args.Command {
	case cli.CmdProjects:
		ps, err := client.ListProjects(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tHOSTNAME\tSTATUS")
		for _, p := range ps {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.GeneratedHostname, p.Status)
		}
		return tw.Flush()
	case cli.CmdCreateProject:
		p, err := client.CreateProject(ctx, args.Hostname)
		return a.print(p, err)
	case cli.CmdTemplates:
		ts, err := client.ListTemplates(ctx)
		return a.print(ts, err)
	case cli.CmdStatus:
		p, err := client.FetchProjectStatus(ctx, args.ProjectID)
		return a.print(p, err)
	case cli.CmdRun:
		return a.runPipeline(ctx)
	case cli.CmdPaths:
		ps, err := client.ListPaths(ctx, args.ProjectID)
		return a.print(ps, err)
	case cli.CmdVersions:
		return a.versions(ctx)
	case cli.CmdCreatePage:
		p, err := a.pages.CreatePage(ctx, args.ProjectID, args.Path, []pages.Section{{Name: "main", Content: args.Content}})
		return a.print(p, err)
	case cli.CmdDraft:
		p, err := a.pages.CreateDraftFromPublished(ctx, args.ProjectID, args.Path)
		return a.print(p, err)
	case cli.CmdPublish:
		p, err := a.pages.Publish(ctx, args.PageID)
		if pages.IsRetryable(err) {
			a.logger.Warn("publish not confirmed, retrying once", logging.Field{Key: "page_id", Value: args.PageID})
			p, err = a.pages.Publish(ctx, args.PageID)
		}
		return a.print(p, err)
	case cli.CmdRestore:
		p, err := a.pages.Restore(ctx, args.PageID)
		return a.print(p, err)
	case cli.CmdDelete:
		return a.pages.DeleteVersion(ctx, args.PageID)
	case cli.CmdDeletePath:
		return a.pages.DeleteAllVersions(ctx, args.ProjectID, args.Path)
	case cli.CmdDiff:
		return a.diff(ctx)
	case cli.CmdEdit:
		return a.edit(ctx)
	case cli.CmdSkill:
		return a.skill(ctx)
	}
	return fmt.Errorf("%w %q", cli.ErrUnknownCommand, args.Command)
}

func (a *app) print(v any, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runPipeline selects the place and configuration and follows the project
// to READY, printing each observed status.
func (a *app) runPipeline(ctx context.Context) error {
	c := pipeline.New(a.client, a.client, a.args.ProjectID, pipeline.Options{PollInterval: a.args.PollInterval, Logger: a.logger})
	defer c.Close()

	unsubscribe := c.Subscribe(func(o status.Observed) {
		fmt.Fprintln(a.out, o)
	})
	defer unsubscribe()

	if err := c.Load(ctx); err != nil {
		return err
	}
	if c.State().Status == status.Created {
		cfg := pipeline.Config{
			PlaceID:      a.args.PlaceID,
			WebsiteURL:   a.args.WebsiteURL,
			TemplateID:   a.args.TemplateID,
			PrimaryColor: a.args.PrimaryColor,
			AccentColor:  a.args.AccentColor,
		}
		if err := c.Select(ctx, pipeline.Place{ID: a.args.PlaceID, WebsiteURL: a.args.WebsiteURL}, cfg); err != nil {
			return err
		}
	}

	select {
	case <-c.Done():
	case <-ctx.Done():
		return fmt.Errorf("waiting for READY: %w", ctx.Err())
	}
	if err := c.LastTriggerError(); err != nil {
		a.logger.Warn("pipeline trigger failed", logging.Field{Key: "error", Value: err.Error()})
	}
	return a.print(c.Project(), nil)
}

func (a *app) versions(ctx context.Context) error {
	vs, err := a.pages.Versions(ctx, a.args.ProjectID, a.args.Path)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATUS\tID\tUPDATED")
	for _, v := range vs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", v.Version, v.Status, v.ID, v.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func (a *app) diff(ctx context.Context) error {
	d, err := a.client.Diff(ctx, a.args.BaseID, a.args.PageID)
	if err != nil {
		return err
	}
	if !d.Changed() {
		fmt.Fprintf(a.out, "v%d and v%d are identical\n", d.BaseVersion, d.HeadVersion)
		return nil
	}
	for _, ch := range d.Chunks {
		sign := "+"
		if ch.Type == "removed" {
			sign = "-"
		}
		fmt.Fprintf(a.out, "%s [%s] %s\n", sign, ch.Section, ch.Content)
	}
	return nil
}

func (a *app) edit(ctx context.Context) error {
	s, err := editsession.Open(ctx, a.pages, a.client, a.args.PageID, a.logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Select(editsession.Element{Selector: a.args.Selector}); err != nil {
		return err
	}
	outcome, err := s.Submit(ctx, a.args.Instruction)
	if err != nil {
		return err
	}
	el, _ := s.Selected()
	history := s.ChatHistory(el.ID)
	if len(history) > 0 {
		fmt.Fprintln(a.out, history[len(history)-1].Content)
	}
	if outcome != editsession.OutcomeApplied {
		return fmt.Errorf("edit %s", outcome)
	}
	if dbg, ok := s.LastDebugInfo(); ok && dbg.Diff != "" {
		fmt.Fprintln(a.out, dbg.Diff)
	}
	saved, err := s.Save(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved %s (v%d)\n", saved.ID, saved.Version)
	return nil
}

func (a *app) skill(ctx context.Context) error {
	g := skills.NewGenerator(a.client, skills.Config{PollInterval: a.args.PollInterval, MaxAttempts: a.args.SkillAttempts}, a.logger)
	h, err := g.Generate(ctx, a.args.ResourceID, a.args.Prompt, func(sk *skills.Skill) {
		a.logger.Info("skill update", logging.Field{Key: "status", Value: string(sk.Status)})
	})
	if err != nil {
		return err
	}
	sk, err := h.Wait(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, sk.Artifact)
	return nil
}
