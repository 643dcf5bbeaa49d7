package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"
	"github.com/spf13/cobra"

	"github.com/openmined/bulkpin/internal/client/handlers"
	"github.com/openmined/bulkpin/internal/utils"
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the local status api and print the run progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			raw, _ := cmd.Flags().GetBool("raw")
			follow, _ := cmd.Flags().GetBool("follow")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true
			w := &statusWatcher{
				client: newStatusClient(utils.HostPortToURL(cfg.StatusAddr), cfg.StatusToken),
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
				raw:    raw,
			}
			return w.watch(cmd.Context(), interval, follow)
		},
	}

	cmd.Flags().Duration("interval", 1*time.Second, "poll interval")
	cmd.Flags().Bool("raw", false, "print the raw json response")
	cmd.Flags().Bool("follow", false, "keep polling after the run has finished")
	return cmd
}

func newStatusClient(baseURL, token string) *req.Client {
	c := req.C().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetCommonErrorResult(&handlers.StatusAPIError{})
	if token != "" {
		c.SetCommonBearerAuthToken(token)
	}
	return c
}

type statusWatcher struct {
	client *req.Client
	out    io.Writer
	errOut io.Writer
	raw    bool
}

// watch polls until ctx is done, or until the run reaches a terminal stage
// unless follow is set.
func (w *statusWatcher) watch(ctx context.Context, interval time.Duration, follow bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := w.poll(ctx)
		if err != nil {
			fmt.Fprintf(w.errOut, "%s %s %v\n", time.Now().UTC().Format(time.RFC3339), red.Render("ERROR"), err)
		} else if !follow && status.Run != nil && status.Run.Stage.IsTerminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *statusWatcher) poll(ctx context.Context) (*handlers.StatusResponse, error) {
	var status handlers.StatusResponse
	res, err := w.client.R().
		SetContext(ctx).
		SetSuccessResult(&status).
		Get("/v1/status")
	if err != nil {
		return nil, err
	}
	if res.IsErrorState() {
		if apiErr, ok := res.ErrorResult().(*handlers.StatusAPIError); ok && apiErr.ErrorCode != "" {
			return nil, fmt.Errorf("%s: %s", apiErr.ErrorCode, apiErr.Error)
		}
		return nil, fmt.Errorf("status api: %s", res.Status)
	}

	if w.raw {
		fmt.Fprintln(w.out, res.String())
	} else {
		renderStatus(w.out, &status)
	}
	return &status, nil
}

func renderStatus(out io.Writer, status *handlers.StatusResponse) {
	run := status.Run
	if run == nil {
		fmt.Fprintln(out, gray.Render("no run yet"))
		return
	}

	stage := run.Stage.String()
	switch {
	case run.Stage.IsError():
		stage = red.Render(stage)
	case run.Stage.IsTerminal():
		stage = green.Render(stage)
	default:
		stage = cyan.Render(stage)
	}

	fmt.Fprintf(out, "%s %s %s  %s pinned, %s syncing, %s skipped, %s failed  %s / %s  %s\n",
		gray.Render(time.Now().Format(time.TimeOnly)),
		stage,
		bold.Render(fmt.Sprintf("%5.1f%%", run.Percent)),
		humanize.Comma(int64(run.PinnedFiles)),
		humanize.Comma(int64(run.SyncingFiles)),
		humanize.Comma(int64(run.SkippedFiles)),
		humanize.Comma(int64(run.FailedFiles)),
		run.PinnedBytesHuman,
		run.BytesToPinHuman,
		lightGray.Render("need "+run.RequiredSpaceHuman+" of "+run.AvailableHuman),
	)
}
