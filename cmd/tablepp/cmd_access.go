package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	tcli "github.com/Zhukowych/tablepp/internal/cli"
	"github.com/Zhukowych/tablepp/pkg/tablepp"
)

// accessCmd groups the permission rule and group membership commands.
func accessCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Manage permission rules and group membership",
		Long: `Rules accept or reject an operation (read, write, delete) on a table or a
column for one user or group. Superusers bypass rules. Without a matching rule
access is granted.`,
	}
	cmd.AddCommand(accessGrantCmd(g), accessRevokeCmd(g), accessRulesCmd(g), accessMemberCmd(g), accessCheckCmd(g))
	return cmd
}

// ruleFlags are shared by grant, revoke and check.
type ruleFlags struct {
	user, group int64
	column      string
	op          string
}

func (f *ruleFlags) register(cmd *cobra.Command, subject bool) {
	if subject {
		cmd.Flags().Int64Var(&f.user, "user", 0, "User id")
		cmd.Flags().Int64Var(&f.group, "group", 0, "Group id")
		cmd.MarkFlagsOneRequired("user", "group")
		cmd.MarkFlagsMutuallyExclusive("user", "group")
	}
	cmd.Flags().StringVar(&f.column, "column", "", "Target a column of the table instead of the table")
	cmd.Flags().StringVar(&f.op, "op", "read", "Operation: read, write or delete")
}

func (f *ruleFlags) subject() (tablepp.SubjectKind, int64) {
	if f.group != 0 {
		return tablepp.SubjectGroup, f.group
	}
	return tablepp.SubjectUser, f.user
}

// target resolves the table argument and --column to a rule target.
func (f *ruleFlags) target(s *session, table string) (tablepp.Target, error) {
	t, err := s.table(table)
	if err != nil {
		return tablepp.Target{}, err
	}
	if f.column == "" {
		return tablepp.TableTarget(t.ID), nil
	}
	col, err := s.client.Column(s.ctx, t, f.column)
	if err != nil {
		return tablepp.Target{}, err
	}
	return tablepp.ColumnTarget(col.ID), nil
}

func accessGrantCmd(g *globals) *cobra.Command {
	var f ruleFlags
	var reject bool

	cmd := &cobra.Command{
		Use:   "grant <table>",
		Short: "Store an accept or reject rule",
		Example: `  tablepp access grant Contacts --group 2 --op write
  tablepp access grant Contacts --user 7 --column age --op read --reject`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := tablepp.ParseOperation(f.op)
			if err != nil {
				return err
			}
			decision := tablepp.Accept
			if reject {
				decision = tablepp.Reject
			}
			return withClient(g, cmd, func(s *session) error {
				target, err := f.target(s, args[0])
				if err != nil {
					return err
				}
				kind, id := f.subject()
				rule, err := s.client.Grant(s.ctx, tablepp.Rule{
					SubjectKind: kind, SubjectID: id, Target: target, Operation: op, Decision: decision,
				})
				if err != nil {
					return err
				}
				return s.print(rule, tcli.FormatSuccess(formatRule(*rule)))
			})
		},
	}

	f.register(cmd, true)
	cmd.Flags().BoolVar(&reject, "reject", false, "Store a reject rule instead of accept")
	return cmd
}

func accessRevokeCmd(g *globals) *cobra.Command {
	var f ruleFlags

	cmd := &cobra.Command{
		Use:   "revoke <table>",
		Short: "Remove the rule of a user or group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := tablepp.ParseOperation(f.op)
			if err != nil {
				return err
			}
			return withClient(g, cmd, func(s *session) error {
				target, err := f.target(s, args[0])
				if err != nil {
					return err
				}
				kind, id := f.subject()
				if err := s.client.Revoke(s.ctx, kind, id, target, op); err != nil {
					return err
				}
				return s.print(map[string]any{"revoked": true}, tcli.FormatSuccess(fmt.Sprintf("revoked %s of %s %d on %s", op, kind, id, target)))
			})
		},
	}

	f.register(cmd, true)
	return cmd
}

func accessRulesCmd(g *globals) *cobra.Command {
	var f ruleFlags

	cmd := &cobra.Command{
		Use:   "rules <table>",
		Short: "List the rules stored for a table or column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(g, cmd, func(s *session) error {
				target, err := f.target(s, args[0])
				if err != nil {
					return err
				}
				rules, err := s.client.Rules(s.ctx, target)
				if err != nil {
					return err
				}
				t := tcli.NewTable("ID", "SUBJECT", "OPERATION", "DECISION")
				for _, r := range rules {
					t.AddRow(strconv.FormatInt(r.ID, 10), fmt.Sprintf("%s:%d", r.SubjectKind, r.SubjectID),
						r.Operation.String(), r.Decision.String())
				}
				return s.print(rules, t.String())
			})
		},
	}

	cmd.Flags().StringVar(&f.column, "column", "", "List the rules of a column instead")
	return cmd
}

func accessCheckCmd(g *globals) *cobra.Command {
	var f ruleFlags

	cmd := &cobra.Command{
		Use:   "check <table>",
		Short: "Report whether the configured user may perform an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := tablepp.ParseOperation(f.op)
			if err != nil {
				return err
			}
			return withClient(g, cmd, func(s *session) error {
				target, err := f.target(s, args[0])
				if err != nil {
					return err
				}
				ok, err := s.client.Allows(s.ctx, s.user, target, op)
				if err != nil {
					return err
				}
				verdict := tcli.Badge("ALLOWED", true)
				if !ok {
					verdict = tcli.Badge("DENIED", false)
				}
				return s.print(map[string]any{"allowed": ok},
					fmt.Sprintf("%s %s %s on %s\n", verdict, s.user, strings.ToLower(op.String()), target))
			})
		},
	}

	f.register(cmd, false)
	return cmd
}

func accessMemberCmd(g *globals) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "member <group> <user>",
		Short: "Add a user to a group, or remove them with --remove",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid group id %q", args[0])
			}
			user, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[1])
			}
			return withClient(g, cmd, func(s *session) error {
				if remove {
					err = s.client.RemoveMember(s.ctx, group, user)
				} else {
					err = s.client.AddMember(s.ctx, group, user)
				}
				if err != nil {
					return err
				}
				groups, err := s.client.UserGroups(s.ctx, user)
				if err != nil {
					return err
				}
				return s.print(map[string]any{"user": user, "groups": groups},
					tcli.KeyValue(fmt.Sprintf("user %d groups", user), fmt.Sprint(groups))+"\n")
			})
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the membership")
	return cmd
}

func formatRule(r tablepp.Rule) string {
	return fmt.Sprintf("%s %s:%d %s on %s", r.Decision, r.SubjectKind, r.SubjectID, r.Operation, r.Target)
}
