// 客户端命令行：上传表格或打开已有文档，驱动本地可视化会话并输出 SVG
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mapvis/internal/logger"
	"mapvis/internal/session"
	"mapvis/internal/transport"
	"mapvis/internal/upload"
	"mapvis/internal/utils"
)

type rootOptions struct {
	Server  string
	Width   int
	Height  int
	FadeMs  int
	Timeout time.Duration
	Out     string
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	logger.Setup()
	if err := newRootCommand(os.Stdout, os.Stdin).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer, in io.Reader) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "mapvis",
		Short:         "Upload tabular datasets and render them as interactive region maps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.Server, "server", utils.EnvOr("MAPVIS_SERVER", "http://localhost:8080"), "mapvis server base URL")
	pf.IntVar(&opts.Width, "width", utils.EnvInt("MAPVIS_WIDTH", 960), "viewport width")
	pf.IntVar(&opts.Height, "height", utils.EnvInt("MAPVIS_HEIGHT", 600), "viewport height")
	pf.IntVar(&opts.FadeMs, "fade", utils.EnvInt("MAPVIS_FADE_MS", 100), "progress indicator fade delay in milliseconds")
	pf.DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "time allowed for uploads and region resolution")
	pf.StringVarP(&opts.Out, "out", "o", "", "write the rendered SVG to this path")

	cmd.AddCommand(&cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload one or more CSV/TSV files and render the last completed one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			files, err := filesFromPaths(args)
			if err != nil {
				return err
			}
			return runOnce(c.Context(), opts, out, func(s *session.Session) { s.Upload(files) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "open DATASET_ID",
		Short: "Fetch a saved dataset and render it",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runOnce(c.Context(), opts, out, func(s *session.Session) { s.Open(args[0]) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "shell [DATASET_ID]",
		Short: "Interactive session: select regions and statistics, resize, navigate history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(contextOf(c))
			defer cancel()
			sh := newShell(ctx, opts, out)
			if len(args) == 1 {
				sh.sess.Open(args[0])
			}
			return sh.run(ctx, in)
		},
	})
	return cmd
}

func contextOf(c *cobra.Command) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newSession(ctx context.Context, opts *rootOptions, alerts io.Writer) *session.Session {
	cfg := session.Config{Width: opts.Width, Height: opts.Height, FadeDelay: time.Duration(opts.FadeMs) * time.Millisecond}
	notify := session.NotifierFunc(func(err error) { fmt.Fprintln(alerts, "alert:", err) })
	s := session.New(cfg, transport.New(opts.Server, nil), notify)
	go func() { _ = s.Run(ctx) }()
	return s
}

// runOnce：投递一个动作，等待上传与区域解析完成后输出摘要，可选写出 SVG
func runOnce(parent context.Context, opts *rootOptions, out io.Writer, act func(*session.Session)) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()
	s := newSession(ctx, opts, os.Stderr)
	act(s)
	if err := s.WaitSettled(ctx); err != nil {
		return err
	}
	st, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	printState(out, st)
	if opts.Out != "" {
		return saveSVG(ctx, s, opts.Out)
	}
	return nil
}

func filesFromPaths(paths []string) ([]upload.File, error) {
	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		f, err := upload.FromPath(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func printState(w io.Writer, st session.State) {
	fmt.Fprintf(w, "path: %s\n", st.Path)
	if st.DatasetID == "" {
		fmt.Fprintln(w, "no dataset loaded")
		return
	}
	fmt.Fprintf(w, "dataset: %s (%s)\n", st.Name, st.DatasetID)
	fmt.Fprintf(w, "records: %d, resolved: %d\n", st.Records, st.Resolved)
	fmt.Fprintf(w, "selected: record=%d stat=%d\n", st.ActiveRecord, st.ActiveHeading)
	fmt.Fprintf(w, "title: %s\n", st.Title)
	if st.Subtitle != "" {
		fmt.Fprintf(w, "subtitle: %s\n", st.Subtitle)
	}
	fmt.Fprintf(w, "upload: %.0f%% %s\n", st.Progress, st.Indicator)
}

func saveSVG(ctx context.Context, s *session.Session, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Render(ctx, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
