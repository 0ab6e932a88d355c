package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	tcli "github.com/Zhukowych/tablepp/internal/cli"
	"github.com/Zhukowych/tablepp/pkg/tablepp"
)

// session is what a command body needs: an open client and the identity
// to act as.
type session struct {
	ctx    context.Context
	client *tablepp.Client
	user   tablepp.User
	g      *globals
}

// withClient opens a client for the duration of fn.
func withClient(g *globals, cmd *cobra.Command, fn func(s *session) error) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	client, err := newClient(g, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(&session{ctx: cmd.Context(), client: client, user: cfg.user(), g: g})
}

// print writes text output, or v as JSON with --json.
func (s *session) print(v any, text string) error {
	if s.g.jsonOutput {
		return tcli.WriteJSON(s.g.stdout, v)
	}
	_, err := fmt.Fprint(s.g.stdout, text)
	return err
}

// table resolves a table reference given on the command line.
func (s *session) table(ref string) (*tablepp.Table, error) {
	return s.client.Table(s.ctx, ref)
}

// formatSync renders the physical changes of a schema mutation.
func formatSync(r *tablepp.SyncReport) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	if len(r.Applied) == 0 {
		b.WriteString(tcli.Dim("  no physical changes") + "\n")
	} else {
		list := tcli.NewList()
		for _, step := range r.Applied {
			list.AddSuccess(fmt.Sprintf("%s %s", step.Op.Type(), tcli.Accent(step.Op.Table())))
		}
		b.WriteString(list.String())
	}
	for _, sk := range r.Skipped {
		b.WriteString(tcli.FormatWarning(fmt.Sprintf("column %s skipped: %v", sk.Column.Name, sk.Err)))
	}
	return b.String()
}

// parseAssignments turns "key=value" pairs into record values. An empty
// value clears the column.
func parseAssignments(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected column=value", p)
		}
		if value == "" {
			values[key] = nil
			continue
		}
		values[key] = value
	}
	return values, nil
}

// parseSettings is parseAssignments for column settings: values are read
// as YAML, so "64" is a number and "[exact, contains]" a list.
func parseSettings(pairs []string) (map[string]any, error) {
	raw, err := parseAssignments(pairs)
	if err != nil {
		return nil, err
	}
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var decoded any
		if err := yaml.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("setting %s: %w", k, err)
		}
		raw[k] = decoded
	}
	return raw, nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return tcli.Dim("no")
}
