// Package cli parses the command line of the sitebuilder client.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

var (
	ErrUsage          = errors.New("usage")
	ErrUnknownCommand = errors.New("unknown command")
)

const DefaultAPIURL = "http://localhost:8080"

// Command names.
const (
	CmdProjects      = "projects"
	CmdCreateProject = "create-project"
	CmdTemplates     = "templates"
	CmdStatus        = "status"
	CmdRun           = "run"
	CmdPaths         = "paths"
	CmdVersions      = "versions"
	CmdCreatePage    = "create-page"
	CmdDraft         = "draft"
	CmdPublish       = "publish"
	CmdRestore       = "restore"
	CmdDelete        = "delete"
	CmdDeletePath    = "delete-path"
	CmdDiff          = "diff"
	CmdEdit          = "edit"
	CmdSkill         = "skill"
)

type command struct {
	summary  string
	required []string
}

var commands = map[string]command{
	CmdProjects:      {summary: "list projects"},
	CmdCreateProject: {summary: "create a project"},
	CmdTemplates:     {summary: "list templates"},
	CmdStatus:        {summary: "show a project's status", required: []string{"project"}},
	CmdRun:           {summary: "configure a project and follow its pipeline to READY", required: []string{"project", "place", "template"}},
	CmdPaths:         {summary: "list the paths of a project", required: []string{"project"}},
	CmdVersions:      {summary: "list the versions of a path", required: []string{"project", "path"}},
	CmdCreatePage:    {summary: "create version 1 of a new path (content read from -content)", required: []string{"project", "path"}},
	CmdDraft:         {summary: "open a draft of a path from its published version", required: []string{"project", "path"}},
	CmdPublish:       {summary: "publish a draft", required: []string{"page"}},
	CmdRestore:       {summary: "copy an inactive version into a new draft", required: []string{"page"}},
	CmdDelete:        {summary: "delete one non-published version", required: []string{"page"}},
	CmdDeletePath:    {summary: "delete every version of a path", required: []string{"project", "path"}},
	CmdDiff:          {summary: "diff two versions", required: []string{"base", "page"}},
	CmdEdit:          {summary: "apply one instruction to one element of a draft and save", required: []string{"page", "selector", "instruction"}},
	CmdSkill:         {summary: "generate a skill and wait for it", required: []string{"resource", "prompt"}},
}

// Args is the parsed command line.
type Args struct {
	APIURL        string
	PollInterval  time.Duration
	SkillAttempts int
	Timeout       time.Duration
	LogLevel      string

	Command string

	ProjectID    string
	PageID       string
	BaseID       string
	Path         string
	Content      string
	Hostname     string
	PlaceID      string
	TemplateID   string
	WebsiteURL   string
	PrimaryColor string
	AccentColor  string
	Selector     string
	Instruction  string
	ResourceID   string
	Prompt       string

	// RawArgs is the original args slice.
	RawArgs []string
}

// ParseArgs parses args (without the program name). Global flags come
// before the command, command flags after it. It does not read os.Args;
// getenv supplies the API URL default and may be nil.
func ParseArgs(args []string, getenv func(string) string) (*Args, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	a := &Args{RawArgs: args}

	global := flag.NewFlagSet("sitebuilder", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	apiDefault := getenv("SITEBUILDER_API_URL")
	if apiDefault == "" {
		apiDefault = DefaultAPIURL
	}
	global.StringVar(&a.APIURL, "api", apiDefault, "API base URL")
	global.DurationVar(&a.PollInterval, "poll", 0, "poll interval (0 = package default)")
	global.IntVar(&a.SkillAttempts, "skill-attempts", 0, "skill poll attempt ceiling (0 = package default)")
	global.DurationVar(&a.Timeout, "timeout", 10*time.Minute, "overall command timeout")
	global.StringVar(&a.LogLevel, "log-level", "warn", "debug|info|warn|error")
	if err := global.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	rest := global.Args()
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: missing command", ErrUsage)
	}
	a.Command = rest[0]
	cmd, ok := commands[a.Command]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, a.Command)
	}

	fs := flag.NewFlagSet(a.Command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&a.ProjectID, "project", "", "project id")
	fs.StringVar(&a.PageID, "page", "", "page version id")
	fs.StringVar(&a.BaseID, "base", "", "base version id for diff")
	fs.StringVar(&a.Path, "path", "", "page path")
	fs.StringVar(&a.Content, "content", "", "HTML content of the main section")
	fs.StringVar(&a.Hostname, "hostname", "", "generated hostname")
	fs.StringVar(&a.PlaceID, "place", "", "business place id")
	fs.StringVar(&a.TemplateID, "template", "", "template id")
	fs.StringVar(&a.WebsiteURL, "website", "", "existing website url")
	fs.StringVar(&a.PrimaryColor, "primary", "", "primary color")
	fs.StringVar(&a.AccentColor, "accent", "", "accent color")
	fs.StringVar(&a.Selector, "selector", "", "CSS selector of the element to edit")
	fs.StringVar(&a.Instruction, "instruction", "", "edit instruction")
	fs.StringVar(&a.ResourceID, "resource", "", "skill resource id")
	fs.StringVar(&a.Prompt, "prompt", "", "skill prompt")
	if err := fs.Parse(rest[1:]); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUsage, a.Command, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: %s: unexpected arguments %v", ErrUsage, a.Command, fs.Args())
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		if strings.TrimSpace(f.Value.String()) != "" {
			set[f.Name] = true
		}
	})
	var missing []string
	for _, name := range cmd.required {
		if !set[name] {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s needs %s", ErrUsage, a.Command, strings.Join(missing, ", "))
	}
	return a, nil
}

// Usage writes the command list to w.
func Usage(w io.Writer) {
	fmt.Fprintln(w, "usage: sitebuilder [-api URL] [-poll D] [-skill-attempts N] [-timeout D] [-log-level L] <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		line := fmt.Sprintf("  %-15s %s", name, c.summary)
		if len(c.required) > 0 {
			line += " (-" + strings.Join(c.required, ", -") + ")"
		}
		fmt.Fprintln(w, line)
	}
}
