// ABOUTME: Template CLI commands
// ABOUTME: Lists, shows, overrides and resets customer message templates
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTemplatesCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage customer message templates",
		Long: `Templates are keyed by phase (key or label) or "custom".
Placeholders: {clientName} {propertyName} {dueDate} {phase} {priority}.`,
	}
	cmd.AddCommand(
		newTemplatesListCommand(app),
		newTemplatesShowCommand(app),
		newTemplatesSetCommand(app),
		newTemplatesResetCommand(app),
	)
	return cmd
}

func newTemplatesListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}
			list, err := svc.Templates.List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "KEY\tNAME\tCUSTOMIZED\tFIRST LINE")
			for _, t := range list {
				name := t.Key
				if p, err := svc.Registry.Parse(t.Key); err == nil {
					name = svc.Registry.Label(p)
				}
				custom := "no"
				if t.Customized {
					custom = "yes"
				}
				first, _, _ := strings.Cut(strings.TrimSpace(t.Body), "\n")
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Key, name, custom, first)
			}
			return w.Flush()
		},
	}
}

func newTemplatesShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <phase|custom>",
		Short: "Print a template body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}
			body, err := svc.Templater.Raw(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func newTemplatesSetCommand(app *App) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "set <phase|custom> [body]",
		Short: "Override a template from an argument, --file, or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}

			var body string
			switch {
			case len(args) == 2:
				body = args[1]
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				body = string(data)
			default:
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				body = string(data)
			}

			key := svc.Templater.Resolve(args[0])
			if err := svc.Templates.Put(key, strings.TrimRight(body, "\n")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ Template saved: "+key))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the body from a file")
	return cmd
}

func newTemplatesResetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <phase|custom>",
		Short: "Drop an override so the built-in template applies again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}
			key := svc.Templater.Resolve(args[0])
			if err := svc.Templates.Reset(key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Template reset: "+key)
			return nil
		},
	}
}
