package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"checkin-sync/internal/domain"
	"checkin-sync/internal/roster"

	"github.com/spf13/cobra"
)

func printMembers(w io.Writer, members []domain.Member) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLOTTERY\tNAME\tKEY\tDEPARTMENT\tSTATE\tCHECKED IN")
	for _, m := range members {
		lottery := "-"
		if m.LotteryNumber != nil {
			lottery = strconv.Itoa(int(*m.LotteryNumber))
		}
		checkin := "-"
		if m.CheckinTime != nil {
			checkin = m.CheckinTime.Local().Format(time.TimeOnly)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", m.ID, lottery, m.Name, m.DisplayKey, m.Department, m.State, checkin)
	}
	tw.Flush()
}

func printMember(w io.Writer, verb string, m *domain.Member) {
	fmt.Fprintf(w, "%s member %d %s (%s), state %s\n", verb, m.ID, m.Name, m.Key(), m.State)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewFailure(domain.ErrValidation, "invalid member id %q", arg)
	}
	return id, nil
}

func listCommand() *cobra.Command {
	var query string
	var byLottery bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the current member list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stationRun(cmd, func(ctx context.Context, s *station) error {
				if _, err := s.transport.List(ctx); err != nil {
					return err
				}
				members := roster.Filter(s.roster.Read(), query)
				if byLottery {
					members = roster.SortByLottery(members)
				}
				printMembers(os.Stdout, members)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "only members whose name, key, department or organization contains this text")
	cmd.Flags().BoolVar(&byLottery, "by-lottery", false, "order by lottery number")
	return cmd
}

type memberFlags struct {
	displayKey   string
	name         string
	organization string
	formerRole   string
	joinYear     string
	department   string
	lottery      int32
}

func (f *memberFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.displayKey, "key", "", "registration number or other lookup key")
	cmd.Flags().StringVar(&f.name, "name", "", "full name")
	cmd.Flags().StringVar(&f.organization, "organization", "", "organization")
	cmd.Flags().StringVar(&f.formerRole, "role", "", "former role")
	cmd.Flags().StringVar(&f.joinYear, "join-year", "", "year joined")
	cmd.Flags().StringVar(&f.department, "department", "", "department")
	cmd.Flags().Int32Var(&f.lottery, "lottery", 0, "lottery number")
}

// apply copies the flags the user set onto m.
func (f *memberFlags) apply(cmd *cobra.Command, m *domain.Member) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("key", &m.DisplayKey, f.displayKey)
	set("name", &m.Name, f.name)
	set("organization", &m.Organization, f.organization)
	set("role", &m.FormerRole, f.formerRole)
	set("join-year", &m.JoinYear, f.joinYear)
	set("department", &m.Department, f.department)
	if cmd.Flags().Changed("lottery") {
		if f.lottery > 0 {
			m.LotteryNumber = domain.Int32Ptr(f.lottery)
		} else {
			m.LotteryNumber = nil
		}
	}
}

func addCommand() *cobra.Command {
	var flags memberFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stationRun(cmd, func(ctx context.Context, s *station) error {
				var m domain.Member
				flags.apply(cmd, &m)
				created, err := s.transport.Create(ctx, m)
				if err != nil {
					return err
				}
				printMember(os.Stdout, "Added", created)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func editCommand() *cobra.Command {
	var flags memberFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit the descriptive fields of a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return stationRun(cmd, func(ctx context.Context, s *station) error {
				if _, err := s.transport.List(ctx); err != nil {
					return err
				}
				m, ok := s.roster.Get(id)
				if !ok {
					return domain.NewFailure(domain.ErrNotFound, "member %d not found", id)
				}
				flags.apply(cmd, &m)
				updated, err := s.transport.Update(ctx, m)
				if err != nil {
					return err
				}
				printMember(os.Stdout, "Updated", updated)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return stationRun(cmd, func(ctx context.Context, s *station) error {
				if err := s.transport.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "Deleted member %d\n", id)
				return nil
			})
		},
	}
}

func checkinCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "checkin <display-key> <lottery-number>",
		Short: "Check a member in and assign a lottery number",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[1], 10, 32)
			if err != nil {
				return domain.NewFailure(domain.ErrValidation, "invalid lottery number %q", args[1])
			}
			return stationRun(cmd, func(ctx context.Context, s *station) error {
				if _, err := s.transport.List(ctx); err != nil {
					return err
				}
				announceCheckin(os.Stdout, s.roster, args[0])
				m, err := s.transport.Checkin(ctx, args[0], int32(n))
				if err != nil {
					return err
				}
				printMember(os.Stdout, "Checked in", m)
				return nil
			})
		},
	}
}

// announceCheckin echoes the member a key resolves to before the server is
// asked. A miss is only a hint; the server holds the authoritative roster.
func announceCheckin(w io.Writer, r *roster.Store, key string) {
	if m, ok := r.FindByDisplayKey(key); ok {
		fmt.Fprintf(w, "Checking in %s (%s), state %s\n", m.Name, m.Key(), m.State)
		return
	}
	fmt.Fprintf(w, "No member with key %q in the local roster, asking the server\n", key)
}

func stateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "state <id> <state>",
		Short: "Move a member along the interview pipeline",
		Long:  "Move a member along the interview pipeline. State is one of NOT_CHECKED_IN, CHECKED_IN, INTERVIEW_CALLED, INTERVIEW_IN_PROGRESS, INTERVIEW_DONE.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			state, ok := domain.ParseMemberState(args[1])
			if !ok {
				return domain.NewFailure(domain.ErrValidation, "unknown member state %q", args[1])
			}
			return stationRun(cmd, func(ctx context.Context, s *station) error {
				m, err := s.transport.SetState(ctx, id, state)
				if err != nil {
					return err
				}
				printMember(os.Stdout, "Updated", m)
				return nil
			})
		},
	}
}

func interviewsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "interviews",
		Short: "Show members called to or sitting an interview, by department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stationRun(cmd, func(ctx context.Context, s *station) error {
				if _, err := s.transport.List(ctx); err != nil {
					return err
				}
				printBoard(os.Stdout, roster.InterviewBoard(s.roster.Read()))
				return nil
			})
		},
	}
}

func printBoard(w io.Writer, board []roster.InterviewGroup) {
	if len(board) == 0 {
		fmt.Fprintln(w, "No interviews in progress")
		return
	}
	for _, group := range board {
		fmt.Fprintf(w, "%s\n", group.Department)
		for _, m := range group.Members {
			fmt.Fprintf(w, "  %-6d %-30s %s\n", m.ID, m.Name, m.State)
		}
	}
}
