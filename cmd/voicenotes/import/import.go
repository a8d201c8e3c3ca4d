// Package importcmder provides the import command, which turns WAV files in a
// folder into memos on a running device and can keep following the folder.
package importcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/voicenotes/api/client"
	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/cliui"
	"github.com/papercomputeco/voicenotes/pkg/config"
	"github.com/papercomputeco/voicenotes/pkg/memo"
)

const defaultSettle = time.Second

// recorder is the part of the API client the import needs.
type recorder interface {
	Record(ctx context.Context, wav []byte, extendID string) (*memo.Memo, error)
}

type importCommander struct {
	apiTarget string
	watch     bool
	settle    time.Duration

	rec  recorder
	out  io.Writer
	done map[string]bool
}

const importLongDesc string = `Import WAV files from a folder as memos.

Every .wav file in the folder becomes a fresh memo on the device, in file name
order. With --watch the command keeps running and imports files as they
appear, once they have stopped changing for --settle. Files that cannot be
decoded or do not match the device's audio format are reported and skipped.

Examples:
  voicenotes import ~/Recordings
  voicenotes import /mnt/recorder --watch`

const importShortDesc string = "Import WAV files from a folder as memos"

func NewImportCmd() *cobra.Command {
	cmder := &importCommander{}

	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: importShortDesc,
		Long:  importLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.ClientFlags, []string{config.FlagAPITarget})
			cmder.apiTarget = v.GetString("client.api_target")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := client.New(cmder.apiTarget)
			if err != nil {
				return err
			}
			cmder.rec = cl
			cmder.out = cmd.OutOrStdout()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cmder.run(ctx, args[0])
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Keep importing new files until interrupted")
	cmd.Flags().DurationVar(&cmder.settle, "settle", defaultSettle, "Quiet period before a changed file is imported")

	return cmd
}

func (c *importCommander) run(ctx context.Context, dir string) error {
	if c.done == nil {
		c.done = make(map[string]bool)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	// Watch before the initial scan so nothing written in between is missed.
	var watcher *fsnotify.Watcher
	if c.watch {
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating folder watcher: %w", err)
		}
		defer watcher.Close()
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && isWAV(e.Name()) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	fmt.Fprintln(c.out)
	for _, path := range paths {
		c.importFile(ctx, path)
	}

	if watcher == nil {
		return nil
	}
	fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("watching "+dir+" (ctrl-c to stop)"))
	return c.follow(ctx, watcher)
}

// follow imports files once no write has touched them for the settle period.
func (c *importCommander) follow(ctx context.Context, watcher *fsnotify.Watcher) error {
	settle := c.settle
	if settle <= 0 {
		settle = defaultSettle
	}
	ticker := time.NewTicker(settle / 4)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isWAV(event.Name) || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			pending[filepath.Clean(event.Name)] = time.Now()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("folder watcher error: %w", err)
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) >= settle {
					delete(pending, path)
					c.importFile(ctx, path)
				}
			}
		}
	}
}

// importFile records path as a fresh memo. Failures are printed, and the
// file stays eligible for a later attempt.
func (c *importCommander) importFile(ctx context.Context, path string) {
	if c.done[path] {
		return
	}
	name := filepath.Base(path)

	m, dur, err := c.record(ctx, path)
	if err != nil {
		fmt.Fprintf(c.out, "  %s %s  %s\n", cliui.FailMark, name, cliui.DimStyle.Render(err.Error()))
		return
	}
	c.done[path] = true
	fmt.Fprintf(c.out, "  %s %s  %s  %s\n",
		cliui.SuccessMark,
		name,
		cliui.KeyStyle.Render(m.ID),
		cliui.DimStyle.Render(cliui.FormatDuration(dur)),
	)
}

func (c *importCommander) record(ctx context.Context, path string) (*memo.Memo, time.Duration, error) {
	wav, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	seg, err := audio.DecodeBytes(wav)
	if err != nil {
		return nil, 0, err
	}
	if seg.Frames() == 0 {
		return nil, 0, errors.New("no audio")
	}

	m, err := c.rec.Record(ctx, wav, "")
	if err != nil {
		return nil, 0, err
	}
	return m, seg.Duration(), nil
}

func isWAV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".wav")
}
