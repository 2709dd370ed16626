package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"listkeeper/internal/domain"
)

func newInitDBCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "database ready")
			return nil
		},
	}
}

func newUserCmd(opts *options) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var password string
	addCmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			user, err := e.users.Register(cmd.Context(), args[0], password, "")
			if err != nil {
				return fmt.Errorf("add user %s: %w", args[0], err)
			}
			e.logger.WithField("user_id", user.ID).Debug("user created")
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
	addCmd.Flags().StringVarP(&password, "password", "p", "", "password for the new account (required)")
	_ = addCmd.MarkFlagRequired("password")

	deleteCmd := &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account along with its lists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			user, err := e.users.GetByUsername(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("find user %s: %w", args[0], err)
			}
			// through the list service so archived snapshots go too
			removed, err := e.lists.DeleteAllFor(cmd.Context(), user.ID)
			if err != nil {
				return fmt.Errorf("delete lists of %s: %w", args[0], err)
			}
			if err := e.users.Delete(cmd.Context(), user.ID); err != nil {
				return fmt.Errorf("delete user %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted user %s and %d list(s)\n", user.Username, removed)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show every account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			users, err := e.users.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tCREATED")
			for _, u := range users {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Username, u.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	userCmd.AddCommand(addCmd, deleteCmd, listCmd)
	return userCmd
}

type listDoc struct {
	ID      int64         `yaml:"id"`
	Name    string        `yaml:"name"`
	Updated string        `yaml:"updated"`
	Tasks   []domain.Task `yaml:"tasks"`
}

func newListsCmd(opts *options) *cobra.Command {
	var (
		username string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Show the saved lists of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "table" && output != "yaml" {
				return fmt.Errorf("unsupported output %q (want table or yaml)", output)
			}

			e, err := openEnv(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			user, err := e.users.GetByUsername(cmd.Context(), username)
			if err != nil {
				return fmt.Errorf("find user %s: %w", username, err)
			}
			lists, err := e.lists.ListAllFor(cmd.Context(), user.ID)
			if err != nil {
				return err
			}

			if output == "yaml" {
				return writeYAML(cmd.OutOrStdout(), lists)
			}
			return writeTable(cmd.OutOrStdout(), lists)
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "account whose lists to show (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or yaml")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func writeTable(w io.Writer, lists []domain.List) error {
	if len(lists) == 0 {
		_, err := fmt.Fprintln(w, "no lists")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTASKS\tUPDATED")
	for _, l := range lists {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", l.ID, l.Name, len(l.Tasks), l.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeYAML(w io.Writer, lists []domain.List) error {
	docs := make([]listDoc, len(lists))
	for i, l := range lists {
		docs[i] = listDoc{
			ID:      l.ID,
			Name:    l.Name,
			Updated: l.UpdatedAt.Format(time.RFC3339),
			Tasks:   l.Tasks,
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("encode lists: %w", err)
	}
	return enc.Close()
}
