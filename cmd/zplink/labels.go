package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"zplink/engine"
	"zplink/jobs"
	"zplink/labeldata"
)

// labelFlags select the object, template and printer for print and generate.
type labelFlags struct {
	kind      string
	files     []string
	printer   string
	template  string
	quantity  int
	printedBy string
}

func (f *labelFlags) register(cmd *cobra.Command, withPrinter bool) {
	cmd.Flags().StringVarP(&f.kind, "kind", "k", "", fmt.Sprintf("Object kind (%s)", strings.Join(labeldata.SupportedKinds(), ", ")))
	cmd.Flags().StringArrayVarP(&f.files, "file", "f", nil, "Object file, JSON or YAML (- for stdin); repeat for a batch")
	cmd.Flags().StringVarP(&f.template, "template", "t", "", "Template name (default: configured default template)")
	cmd.Flags().IntVarP(&f.quantity, "quantity", "q", 1, "Copies per label (1-100)")
	if withPrinter {
		cmd.Flags().StringVarP(&f.printer, "printer", "P", "", "Printer name (default: configured default printer)")
		cmd.Flags().StringVar(&f.printedBy, "printed-by", os.Getenv("USER"), "Operator recorded on the job")
	}
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("file")
}

// readObject loads one object file. YAML files are decoded into the typed
// object first and re-encoded so the engine always receives JSON.
func readObject(kind, path string, stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		obj, err := labeldata.DecodeYAML(kind, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return json.Marshal(obj)
	}
	return json.RawMessage(data), nil
}

func (f *labelFlags) request(stdin io.Reader) (engine.LabelRequest, error) {
	if len(f.files) != 1 {
		return engine.LabelRequest{}, fmt.Errorf("expected one --file, got %d", len(f.files))
	}
	raw, err := readObject(f.kind, f.files[0], stdin)
	if err != nil {
		return engine.LabelRequest{}, err
	}
	return engine.LabelRequest{
		Kind:      f.kind,
		Object:    raw,
		Printer:   f.printer,
		Template:  f.template,
		Quantity:  f.quantity,
		PrintedBy: f.printedBy,
	}, nil
}

func (f *labelFlags) batchRequest(stdin io.Reader) (engine.BatchLabelRequest, error) {
	req := engine.BatchLabelRequest{
		Kind:      f.kind,
		Printer:   f.printer,
		Template:  f.template,
		Quantity:  f.quantity,
		PrintedBy: f.printedBy,
	}
	for _, path := range f.files {
		raw, err := readObject(f.kind, path, stdin)
		if err != nil {
			return req, err
		}
		req.Objects = append(req.Objects, raw)
	}
	return req, nil
}

func newPrintCmd(gf *globalFlags) *cobra.Command {
	flags := &labelFlags{}

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print labels for one or more objects",
		Long: `Render labels and send them to a printer. One --file prints a single label;
several print a batch. Batches at or above the background threshold are
queued and followed until they finish.`,
		Example: `  # Print a cable label on the default printer
  zplink print --kind cable --file cable.json

  # Print three devices, two copies each
  zplink print -k device -f a.yaml -f b.yaml -f c.yaml -P rack-row-3 -q 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(gf, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(flags.files) == 1 {
				return runPrintOne(cmd, a, flags)
			}
			return runPrintBatch(cmd, a, flags)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func runPrintOne(cmd *cobra.Command, a *app, flags *labelFlags) error {
	req, err := flags.request(cmd.InOrStdin())
	if err != nil {
		return err
	}
	job, err := a.engine.PrintLabel(cmd.Context(), req)
	if err != nil {
		return err
	}
	if !job.Success {
		return fmt.Errorf("print on %s failed: %s", job.Printer, job.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Printed %s on %s (job %s, %d bytes)\n", job.Object, job.Printer, job.ID, job.BytesSent)
	return nil
}

func runPrintBatch(cmd *cobra.Command, a *app, flags *labelFlags) error {
	req, err := flags.batchRequest(cmd.InOrStdin())
	if err != nil {
		return err
	}
	res, err := a.engine.PrintLabels(cmd.Context(), req)
	if err != nil {
		return err
	}

	sum := res.Summary
	if res.Background != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Queued batch %s (%d labels)\n", res.Background.ID, res.Background.Total)
		st, err := waitBatch(cmd.Context(), a.engine, res.Background.ID)
		if err != nil {
			return err
		}
		sum = st.Summary
	}
	if sum == nil {
		return fmt.Errorf("batch finished without a summary")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Printed %d, failed %d\n", sum.Printed, sum.Failed)
	if sum.Failed > 0 {
		if sum.Error != "" {
			return fmt.Errorf("%d labels failed: %s", sum.Failed, sum.Error)
		}
		return fmt.Errorf("%d labels failed", sum.Failed)
	}
	return nil
}

func waitBatch(ctx context.Context, eng *engine.Engine, id string) (jobs.BatchStatus, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		st, err := eng.Batch(id)
		if err != nil {
			return st, err
		}
		if st.State == jobs.BatchDone {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

type generateFlags struct {
	labelFlags
	output  string
	preview string
}

func newGenerateCmd(gf *globalFlags) *cobra.Command {
	flags := &generateFlags{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render a label to ZPL without printing",
		Example: `  # Write the ZPL to stdout
  zplink generate --kind rack --file rack.yaml

  # Save the ZPL and a PNG preview
  zplink generate -k cable -f cable.json -o cable.zpl --preview cable.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, gf, flags)
		},
	}
	flags.register(cmd, false)
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write ZPL to file instead of stdout (a directory uses the download filename)")
	cmd.Flags().StringVar(&flags.preview, "preview", "", "Also write a rendered preview image to this file")
	return cmd
}

func runGenerate(cmd *cobra.Command, gf *globalFlags, flags *generateFlags) error {
	a, err := openApp(gf, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := flags.request(cmd.InOrStdin())
	if err != nil {
		return err
	}
	label, err := a.engine.GenerateLabel(req)
	if err != nil {
		return err
	}

	switch {
	case flags.output == "":
		fmt.Fprint(cmd.OutOrStdout(), label.ZPL)
	default:
		path := flags.output
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, label.Filename())
		}
		if err := os.WriteFile(path, []byte(label.ZPL), 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
	}

	if flags.preview != "" {
		res, err := a.engine.PreviewLabel(cmd.Context(), req)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("preview failed: %s", res.Error)
		}
		if err := os.WriteFile(flags.preview, res.ImageData, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", flags.preview)
	}
	return nil
}
