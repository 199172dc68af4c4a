package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xADE/ade-launchd/client/launch"
)

// session carries the daemon connection shared by subcommands
type session struct {
	client *launch.Client
	json   bool
}

func newRootCommand() *cobra.Command {
	s := &session{}
	cmd := &cobra.Command{
		Use:           "ade-launch",
		Short:         "Query the ade-launchd application catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			client, err := launch.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			s.client = client
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if s.client != nil {
				return s.client.Close()
			}
			return nil
		},
	}
	cmd.PersistentFlags().BoolVar(&s.json, "json", false, "print results as JSON")

	cmd.AddCommand(
		s.classifyCommand(),
		s.searchCommand(),
		s.queryCommand(),
		s.launchedCommand(),
		s.completeCommand(),
		s.cycleCommand("next", "Show the next completion", false),
		s.cycleCommand("prev", "Show the previous completion", true),
		s.reindexCommand(),
		s.visitCommand(),
		s.recentCommand(),
		s.statusCommand(),
		s.interactiveCommand(),
	)
	return cmd
}

func (s *session) classifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Tell whether text is an app search, a path or a command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := s.client.Classify(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return s.print(cmd.OutOrStdout(), map[string]string{"intent": in}, in)
		},
	}
}

func (s *session) searchCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Rank applications against a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			apps, err := s.client.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return s.print(cmd.OutOrStdout(), apps, renderApps(apps))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (daemon default when 0)")
	return cmd
}

func (s *session) queryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Classify text and show what it resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := s.client.Query(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return s.print(cmd.OutOrStdout(), res, renderQuery(res))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of applications")
	return cmd
}

func (s *session) launchedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "launched <id>",
		Short: "Record that an application was launched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := s.client.Launched(args[0])
			if err != nil {
				return err
			}
			return s.print(cmd.OutOrStdout(), map[string]any{"id": args[0], "useCount": n}, strconv.Itoa(n))
		},
	}
}

func (s *session) completeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <path>",
		Short: "List directories completing a partial path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := s.client.Complete(args[0])
			if err != nil {
				return err
			}
			return s.print(cmd.OutOrStdout(), paths, strings.Join(paths, "\n"))
		},
	}
}

func (s *session) cycleCommand(use, short string, backward bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <path>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cycle := s.client.CompleteNext
			if backward {
				cycle = s.client.CompletePrev
			}
			got, ok, err := cycle(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no completion for %s", args[0])
			}
			return s.print(cmd.OutOrStdout(), map[string]string{"completion": got}, got)
		},
	}
}

func (s *session) reindexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rescan the search roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := s.client.Reindex()
			if err != nil {
				return err
			}
			return s.print(cmd.OutOrStdout(), map[string]int{"indexed": n}, fmt.Sprintf("indexed %d applications", n))
		},
	}
}

func (s *session) visitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "visit <path>",
		Short: "Record a use of a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := s.client.Visit(args[0])
			if err != nil {
				return err
			}
			return s.print(cmd.OutOrStdout(), map[string]uint64{"frequency": n}, strconv.FormatUint(n, 10))
		},
	}
}

func (s *session) recentCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List frequently used directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recent, err := s.client.Recent(limit)
			if err != nil {
				return err
			}
			var b strings.Builder
			for _, r := range recent {
				fmt.Fprintf(&b, "%8.3f  %s\n", r.Score, r.Path)
			}
			return s.print(cmd.OutOrStdout(), recent, strings.TrimSuffix(b.String(), "\n"))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of paths")
	return cmd
}

func (s *session) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Describe the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.client.Status()
			if err != nil {
				return err
			}
			text := fmt.Sprintf("entries: %d\nbuilt-at: %s\nschema: %s\nrebuilding: %t",
				st.Entries, st.BuiltAt.Local().Format("2006-01-02 15:04:05"), st.Schema, st.Rebuilding)
			return s.print(cmd.OutOrStdout(), st, text)
		},
	}
}

func (s *session) interactiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Type queries line by line; :next and :prev cycle path completions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runInteractive(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (s *session) runInteractive(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "Interactive mode. Type a query, :next, :prev, :launched <id> or 'exit' to quit.")
	fmt.Fprint(out, "> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "exit" || line == "quit":
			return nil
		case line == "":
		case line == ":next" || line == ":prev":
			cycle := s.client.CompleteNext
			if line == ":prev" {
				cycle = s.client.CompletePrev
			}
			if got, ok, err := cycle(""); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			} else if ok {
				fmt.Fprintln(out, got)
			}
		case strings.HasPrefix(line, ":launched "):
			id := strings.TrimSpace(strings.TrimPrefix(line, ":launched "))
			if n, err := s.client.Launched(id); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			} else {
				fmt.Fprintf(out, "use count %d\n", n)
			}
		default:
			if res, err := s.client.Query(line, 0); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			} else if text := renderQuery(res); text != "" {
				fmt.Fprintln(out, text)
			}
		}

		fmt.Fprint(out, "> ")
	}

	return scanner.Err()
}

// print writes v as JSON when --json is set, text otherwise
func (s *session) print(out io.Writer, v any, text string) error {
	if s.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if text == "" {
		return nil
	}
	_, err := fmt.Fprintln(out, text)
	return err
}

func renderApps(apps []launch.Application) string {
	var b strings.Builder
	for _, app := range apps {
		fmt.Fprintf(&b, "%s  %-8s %s\t%s\n", app.ID, app.Kind, app.Name, app.Path)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderQuery(res *launch.QueryResult) string {
	switch res.Intent {
	case "path":
		return strings.Join(res.Paths, "\n")
	case "command":
		return "$ " + res.Command
	default:
		return renderApps(res.Apps)
	}
}
