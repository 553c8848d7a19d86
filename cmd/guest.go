package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/teesched/internal/config"
	"github.com/example/teesched/internal/db"
	"github.com/example/teesched/internal/roster"
)

func newGuestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guest",
		Short: "Manage the standing guest roster",
	}
	cmd.AddCommand(newGuestSetCmd())
	cmd.AddCommand(newGuestListCmd())
	return cmd
}

func newGuestSetCmd() *cobra.Command {
	var (
		position  int
		firstName string
		lastName  string
		memberNo  string
	)

	c := &cobra.Command{
		Use:   "set",
		Short: "Set the guest at a roster position (1-4)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if position < 1 || position > 4 {
				return fmt.Errorf("--position must be 1-4")
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := db.Migrate(cfg.DatabaseURL); err != nil {
				return err
			}

			g := roster.Guest{Position: position, FirstName: firstName, LastName: lastName, MemberNo: memberNo}
			if err := roster.NewRepo(d).Put(ctx, g); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "set guest %d: %s (%s)\n", position, g.FullName(), memberNo)
			return nil
		},
	}

	c.Flags().IntVar(&position, "position", 0, "roster position (1-4)")
	c.Flags().StringVar(&firstName, "first-name", "", "first name")
	c.Flags().StringVar(&lastName, "last-name", "", "last name")
	c.Flags().StringVar(&memberNo, "member-no", "", "club member number")
	_ = c.MarkFlagRequired("position")
	_ = c.MarkFlagRequired("first-name")
	_ = c.MarkFlagRequired("member-no")
	return c
}

func newGuestListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the guest roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			gs, err := roster.NewRepo(d).List(ctx)
			if err != nil {
				return err
			}
			for _, g := range gs {
				fmt.Fprintf(os.Stdout, "position=%d name=%q member=%s\n", g.Position, g.FullName(), g.MemberNo)
			}
			return nil
		},
	}
}
