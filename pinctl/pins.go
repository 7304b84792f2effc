package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	se "community.io/pinboard/errors"
	md "community.io/pinboard/models"
	st "community.io/pinboard/stores"
)

func newListCmd(a *app) *cobra.Command {
	var elapsed, upcoming bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored pins by datetime. Lists all pins unless --elapsed or --upcoming narrows it down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := st.Filter{IncludeElapsed: elapsed, IncludeUpcoming: upcoming}
			if !elapsed && !upcoming {
				f = st.FilterAll
			}
			sp, err := a.Pins.ListSlugs(f)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLUG\tDATETIME\tTITLE")
			for _, e := range sp.ByDatetime(false) {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Slug, e.Pin.Datetime.Display(a.Cfg.Time), e.Pin.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&elapsed, "elapsed", "e", false, "include pins that have ended")
	cmd.Flags().BoolVarP(&upcoming, "upcoming", "u", false, "include pins that have not ended")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "show SLUG",
		Short: "Print a pin as stored, or one of its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.Pins.Get(args[0])
			if err != nil {
				return err
			}
			if field != "" {
				v, ok := p.Field(field)
				if !ok {
					return se.NewBadInput(fmt.Sprintf("unknown field %q, expected one of %v", field, md.FieldNames()))
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			}
			b, err := md.MarshalPin(p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().StringVarP(&field, "field", "f", "", "print only this field")
	return cmd
}

var requiredFields = []string{md.FieldTitle, md.FieldLocation, md.FieldPostedBy, md.FieldDatetime}

func newAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a pin under a slug derived from its title and print the slug it got",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := md.ParamsFrom(func(name string) string {
				v, _ := cmd.Flags().GetString(name)
				return strings.TrimSpace(v)
			})
			for _, name := range requiredFields {
				if v, _ := cmd.Flags().GetString(name); strings.TrimSpace(v) == "" {
					return se.NewBadInput(fmt.Sprintf("--%s must not be empty", name))
				}
			}
			// zoneless datetimes are the site's wall clock
			p, err := md.NewPin(params, a.Cfg.Time.Location)
			if err != nil {
				return err
			}
			path, err := a.Pins.Save(p, md.Slugify(p.Title), false)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), st.SlugOf(path))
			return nil
		},
	}
	for _, name := range md.FieldNames() {
		cmd.Flags().String(name, "", name+" of the pin")
	}
	for _, name := range requiredFields {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
