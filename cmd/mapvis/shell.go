package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"mapvis/internal/breakdown"
	"mapvis/internal/resolver"
	"mapvis/internal/session"
)

var errUsage = errors.New("usage")

const shellHelp = `commands:
  upload PATH...   upload files
  open ID          open a saved dataset
  select N         select record N
  stat N           mark statistic N active
  esc              clear the selection
  resize W H       change the viewport
  back | forward   navigate history (full reload)
  reload           re-fetch the current document
  wait             wait for uploads and region resolution
  state            print the session state
  headings         list column labels
  save PATH        write the current scene as SVG
  quit`

// shell：逐行读取命令并投递到会话；每条命令结束后等待事件循环处理完毕再输出
type shell struct {
	sess *session.Session
	out  io.Writer
}

// 告警来自事件循环 goroutine，与命令输出共用同一 writer
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newShell(ctx context.Context, opts *rootOptions, out io.Writer) *shell {
	lw := &lockedWriter{w: out}
	return &shell{sess: newSession(ctx, opts, lw), out: lw}
}

func (sh *shell) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(sh.out, "> ")
	for sc.Scan() {
		quit, err := sh.exec(ctx, sc.Text())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, session.ErrClosed) {
				return err
			}
			fmt.Fprintln(sh.out, "error:", err)
		}
		if quit {
			return nil
		}
		fmt.Fprint(sh.out, "> ")
	}
	return sc.Err()
}

func (sh *shell) exec(ctx context.Context, line string) (bool, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return false, nil
	}
	s := sh.sess
	switch cmd, args := f[0], f[1:]; cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
		return false, nil
	case "upload":
		if len(args) == 0 {
			return false, fmt.Errorf("%w: upload PATH...", errUsage)
		}
		files, err := filesFromPaths(args)
		if err != nil {
			return false, err
		}
		s.Upload(files)
	case "open":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: open ID", errUsage)
		}
		s.Open(args[0])
	case "select", "stat":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: %s N", errUsage, cmd)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("%w: %s N", errUsage, cmd)
		}
		if cmd == "select" {
			s.Activate(resolver.RegionID(n))
		} else {
			s.Activate(breakdown.StatID(n))
		}
	case "esc":
		s.Key(session.KeyEscape)
	case "resize":
		if len(args) != 2 {
			return false, fmt.Errorf("%w: resize W H", errUsage)
		}
		w, err1 := strconv.Atoi(args[0])
		h, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
			return false, fmt.Errorf("%w: resize W H", errUsage)
		}
		s.Resize(w, h)
	case "back", "forward":
		move := s.Back
		if cmd == "forward" {
			move = s.Forward
		}
		moved, err := move(ctx)
		if err != nil {
			return false, err
		}
		if !moved {
			fmt.Fprintln(sh.out, "no history")
		}
	case "reload":
		if err := s.Reload(ctx); err != nil {
			return false, err
		}
	case "wait":
		if err := s.WaitSettled(ctx); err != nil {
			return false, err
		}
	case "state":
		st, err := s.Snapshot(ctx)
		if err != nil {
			return false, err
		}
		printState(sh.out, st)
		return false, nil
	case "headings":
		hs, err := s.Headings(ctx)
		if err != nil {
			return false, err
		}
		for i, h := range hs {
			fmt.Fprintf(sh.out, "%d %s\n", i, h)
		}
		return false, nil
	case "save":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: save PATH", errUsage)
		}
		if err := saveSVG(ctx, s, args[0]); err != nil {
			return false, err
		}
		fmt.Fprintln(sh.out, "saved", args[0])
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}
