package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"zplink/engine"
	"zplink/zpl"
)

func newTemplateCmd(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"templates"},
		Short:   "Manage ZPL label templates",
	}
	cmd.AddCommand(newTemplateListCmd(gf))
	cmd.AddCommand(newTemplateShowCmd(gf))
	cmd.AddCommand(newTemplateImportCmd(gf))
	cmd.AddCommand(newTemplateDeleteCmd(gf))
	cmd.AddCommand(newTemplatePreviewCmd(gf))
	cmd.AddCommand(newTemplateValidateCmd())
	cmd.AddCommand(newTemplateSanitizeCmd())
	return cmd
}

func newTemplateListCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored and built-in templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-28s %-10s %-14s %s\n", "NAME", "SIZE", "DIMENSIONS", "FLAGS")
			for _, t := range a.engine.ListTemplates() {
				var marks []string
				if t.BuiltIn {
					marks = append(marks, "built-in")
				}
				if t.IsDefault {
					marks = append(marks, "default")
				}
				if t.IncludeQR {
					marks = append(marks, "qr")
				}
				dims := fmt.Sprintf("%gx%gmm", t.WidthMM, t.HeightMM)
				fmt.Fprintf(out, "%-28s %-10s %-14s %s\n", t.Name, t.LabelSize, dims, strings.Join(marks, ","))
			}
			return nil
		},
	}
}

func newTemplateShowCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a template as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.engine.GetTemplate(args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(t)
		},
	}
}

// decodeTemplates reads one template document or a list of them.
func decodeTemplates(data []byte) ([]zpl.TemplateDefinition, error) {
	var list []zpl.TemplateDefinition
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var one zpl.TemplateDefinition
	if err := yaml.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []zpl.TemplateDefinition{one}, nil
}

func newTemplateImportCmd(gf *globalFlags) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Add templates from a YAML file",
		Long: `Add one template, or a list of templates, from a YAML file. Templates are
checked against the ZPL command denylist before they are saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			defs, err := decodeTemplates(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, t := range defs {
				err := a.engine.CreateTemplate(t)
				verb := "Added"
				if errors.Is(err, engine.ErrAlreadyExists) && replace {
					err = a.engine.UpdateTemplate(t.Name, t)
					verb = "Replaced"
				}
				if err != nil {
					return templateError(t.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s template %s\n", verb, t.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "Overwrite stored templates with the same name")
	return cmd
}

// templateError names the denied commands when a template fails the check.
func templateError(name string, err error) error {
	var verr *zpl.ValidationError
	if errors.As(err, &verr) && len(verr.Commands) > 0 {
		return fmt.Errorf("template %s: forbidden commands %s", name, strings.Join(verr.Commands, " "))
	}
	return fmt.Errorf("template %s: %w", name, err)
}

func newTemplateDeleteCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.DeleteTemplate(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted template %s\n", args[0])
			return nil
		},
	}
}

func newTemplatePreviewCmd(gf *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "preview <name>",
		Short: "Render a template with sample cable data to an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.PreviewTemplate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("preview failed: %s", res.Error)
			}
			return os.WriteFile(output, res.ImageData, 0644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "preview.png", "Image file to write")
	return cmd
}

// readTemplateText reads raw ZPL from a file or stdin.
func readTemplateText(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	return string(data), err
}

func newTemplateValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.zpl>",
		Short: "Check ZPL text for forbidden commands",
		Long: `Check ZPL text against the denylist of commands that change printer
configuration, network or file state. Exits non-zero when any are found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readTemplateText(cmd, args[0])
			if err != nil {
				return err
			}
			safe, found := zpl.ValidateTemplate(text)
			if !safe {
				return fmt.Errorf("forbidden commands: %s", strings.Join(found, " "))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}

func newTemplateSanitizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize <file.zpl>",
		Short: "Print ZPL text with forbidden commands removed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readTemplateText(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), zpl.SanitizeTemplate(text))
			return nil
		},
	}
}
