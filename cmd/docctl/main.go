// Command docctl opens a document from the terminal: show it, decide its
// approval or export its line items.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/application/service"
	"github.com/garyjia/logistics-console/internal/config"
	"github.com/garyjia/logistics-console/internal/container"
	"github.com/garyjia/logistics-console/pkg/utils"
)

type LoginCmd struct {
	Token  string `arg:"--token,env:CONSOLE_TOKEN,required" help:"bearer token issued by the backend"`
	UserID string `arg:"--user-id" help:"user id the token belongs to, read from the token when omitted"`
	Name   string `arg:"--name" help:"display name"`
}

type LogoutCmd struct{}

type DocumentArgs struct {
	Type string `arg:"positional,required" help:"document type, e.g. sales-order"`
	ID   string `arg:"positional,required" help:"document id"`
}

type ShowCmd struct {
	DocumentArgs
	JSON bool `arg:"--json" help:"print the form snapshot as JSON"`
}

type DecideCmd struct {
	DocumentArgs
}

type ExportCmd struct {
	DocumentArgs
	Out string `arg:"-o,--out" help:"write the workbook here instead of the export directory"`
}

type TypesCmd struct{}

var args struct {
	Config  string `arg:"-c,--config,env:CONSOLE_CONFIG" default:"configs/config.yaml"`
	Verbose bool   `arg:"-v,--verbose"`

	Login      *LoginCmd  `arg:"subcommand:login" help:"store the identity used for backend calls"`
	Logout     *LogoutCmd `arg:"subcommand:logout" help:"forget the stored identity"`
	Types      *TypesCmd  `arg:"subcommand:types" help:"list document types"`
	Show       *ShowCmd   `arg:"subcommand:show" help:"print a document"`
	Approve    *DecideCmd `arg:"subcommand:approve" help:"approve a document"`
	Disapprove *DecideCmd `arg:"subcommand:disapprove" help:"withdraw approval of a document"`
	Export     *ExportCmd `arg:"subcommand:export" help:"export line items to Excel"`
}

func main() {
	p := arg.MustParse(&args)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	logger, err := utils.NewCLILogger(args.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, apperrors.ErrMissingIdentity) {
			fmt.Fprintln(os.Stderr, "run `docctl login` first")
		}
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load(args.Config)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Close()

	out := os.Stdout
	switch {
	case args.Login != nil:
		ident, err := c.Identity().SignIn(ctx, args.Login.Token, args.Login.UserID, args.Login.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Signed in as %s\n", ident.UserID)
		return nil
	case args.Logout != nil:
		return c.Identity().SignOut(ctx)
	case args.Types != nil:
		for _, dt := range c.Registry().All() {
			fmt.Fprintf(out, "%-20s %s\n", dt.Name, dt.Title)
		}
		return nil
	case args.Show != nil:
		sess, err := open(ctx, c, args.Show.DocumentArgs)
		if err != nil {
			return err
		}
		if args.Show.JSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(sess.Form.Snapshot())
		}
		return printForm(out, sess.Form.Snapshot())
	case args.Approve != nil:
		return decide(ctx, c, args.Approve.DocumentArgs, service.ActionApprove, out)
	case args.Disapprove != nil:
		return decide(ctx, c, args.Disapprove.DocumentArgs, service.ActionDisapprove, out)
	case args.Export != nil:
		return export(ctx, c, args.Export, out)
	}
	return nil
}

func open(ctx context.Context, c *container.Container, doc DocumentArgs) (*service.Session, error) {
	sess, err := c.Sessions().Open(ctx, doc.Type, doc.ID)
	if err != nil {
		return nil, err
	}
	for _, w := range sess.Form.Snapshot().Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return sess, nil
}

func decide(ctx context.Context, c *container.Container, doc DocumentArgs, action service.StatusAction, out io.Writer) error {
	sess, err := open(ctx, c, doc)
	if err != nil {
		return err
	}
	snap, err := sess.Form.StatusView().Select(ctx, action)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s #%s: %s\n", sess.Form.Config().Title, sess.DocumentID, snap.Aggregate)
	return nil
}

func export(ctx context.Context, c *container.Container, cmd *ExportCmd, out io.Writer) error {
	sess, err := open(ctx, c, cmd.DocumentArgs)
	if err != nil {
		return err
	}

	if cmd.Out == "" {
		path, err := c.Exports().Archive(ctx, sess.Form)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	}

	f, err := os.Create(cmd.Out)
	if err != nil {
		return err
	}
	if err := c.Exports().Write(f, sess.Form); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(out, cmd.Out)
	return nil
}
