package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shotdiff/internal/api"
	"shotdiff/internal/daemonctl"
	"shotdiff/internal/diffstatus"
	"shotdiff/internal/jobstatus"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <image>...",
		Short: "Upload images and print their asset keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(args))
			for _, path := range args {
				resp, err := uploadFile(cmd.Context(), client, path)
				if err != nil {
					return wrapClientError(err, ctx.configValue())
				}
				rows = append(rows, []string{path, resp.Key, resp.URL})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"File", "Key", "URL"}, rows, nil))
			return nil
		},
	}
}

func uploadFile(ctx context.Context, client *daemonctl.Client, path string) (*api.AssetResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	resp, err := client.Upload(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	return resp, nil
}

// parseScreenshotArg splits "name=path" and falls back to the file's base
// name without extension.
func parseScreenshotArg(arg string) (name, path string) {
	if before, after, ok := strings.Cut(arg, "="); ok && before != "" && after != "" {
		return before, after
	}
	base := filepath.Base(arg)
	return strings.TrimSuffix(base, filepath.Ext(base)), arg
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		req      api.SubmissionRequest
		number   int64
		keyFlags []string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "submit [name=]<image>...",
		Short: "Upload screenshots and submit them as a build",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(keyFlags) == 0 {
				return fmt.Errorf("at least one screenshot is required")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			for _, arg := range args {
				name, path := parseScreenshotArg(arg)
				resp, err := uploadFile(cmd.Context(), client, path)
				if err != nil {
					return wrapClientError(err, ctx.configValue())
				}
				req.Screenshots = append(req.Screenshots, api.ScreenshotRef{Key: resp.Key, Name: name})
			}
			for _, flag := range keyFlags {
				name, key, ok := strings.Cut(flag, "=")
				if !ok || name == "" || key == "" {
					return fmt.Errorf("invalid --key %q, expected name=key", flag)
				}
				req.Screenshots = append(req.Screenshots, api.ScreenshotRef{Key: key, Name: name})
			}
			if cmd.Flags().Changed("number") {
				req.Number = &number
			}
			resp, err := client.Submit(cmd.Context(), req)
			if err != nil {
				return wrapClientError(err, ctx.configValue())
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Build %d submitted: %s\n", resp.Build.ID, resp.Build.URL)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Int64Var(&req.RepositoryID, "repository", 0, "Repository id")
	flags.StringVar(&req.Commit, "commit", "", "Commit sha")
	flags.StringVar(&req.Branch, "branch", "", "Branch name")
	flags.StringVar(&req.Name, "name", "default", "Build name")
	flags.Int64Var(&number, "number", 0, "Explicit build number")
	flags.BoolVar(&req.Parallel, "parallel", false, "Submit one shard of a parallel build")
	flags.StringVar(&req.ParallelNonce, "parallel-nonce", "", "Identifier shared by every shard")
	flags.IntVar(&req.ParallelTotal, "parallel-total", 0, "Number of shards expected")
	flags.StringArrayVar(&keyFlags, "key", nil, "Reference an uploaded screenshot as name=key (repeatable)")
	flags.BoolVar(&asJSON, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("repository")
	_ = cmd.MarkFlagRequired("commit")
	_ = cmd.MarkFlagRequired("branch")
	return cmd
}

func newBuildsCommand(ctx *commandContext) *cobra.Command {
	var repositoryID int64
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List recent builds",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			builds, err := client.ListBuilds(cmd.Context(), repositoryID, limit)
			if err != nil {
				return wrapClientError(err, ctx.configValue())
			}
			if asJSON {
				return writeJSON(cmd, builds)
			}
			stdout := cmd.OutOrStdout()
			if len(builds) == 0 {
				fmt.Fprintln(stdout, "No builds found")
				return nil
			}
			colorize := shouldColorize(stdout)
			rows := make([][]string, 0, len(builds))
			for _, b := range builds {
				rows = append(rows, []string{
					strconv.FormatInt(b.ID, 10),
					strconv.FormatInt(b.RepositoryID, 10),
					strconv.FormatInt(b.Number, 10),
					b.Name,
					colorizeStatus(b.Status, colorize),
					humanLabel(deref(b.Conclusion)),
					humanLabel(deref(b.ReviewStatus)),
					localTime(b.CreatedAt),
				})
			}
			fmt.Fprint(stdout, renderTable(
				[]string{"ID", "Repo", "#", "Name", "Status", "Conclusion", "Review", "Created"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().Int64Var(&repositoryID, "repository", 0, "Only list builds of this repository")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of builds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON, wait bool
	var interval time.Duration
	var only []string
	cmd := &cobra.Command{
		Use:   "show <build-id>",
		Short: "Show a build and its screenshot diffs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			filter, err := parseDiffFilter(only)
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var build *api.Build
			if wait {
				build, err = waitForBuild(cmd.Context(), client, id, interval)
			} else {
				build, err = client.Build(cmd.Context(), id)
			}
			if err != nil {
				return wrapClientError(err, ctx.configValue())
			}
			diffs, err := client.Diffs(cmd.Context(), id)
			if err != nil {
				return wrapClientError(err, ctx.configValue())
			}
			diffs = filterDiffs(diffs, filter)
			if asJSON {
				return writeJSON(cmd, struct {
					Build api.Build  `json:"build"`
					Diffs []api.Diff `json:"diffs"`
				}{*build, diffs})
			}
			renderBuild(cmd, build, diffs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the build reaches a final status")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval for --wait")
	cmd.Flags().StringSliceVar(&only, "status", nil, "Only show diffs with these results (failure, changed, added, removed, unchanged)")
	return cmd
}

// waitForBuild polls until the build's derived status is final.
func waitForBuild(ctx context.Context, client *daemonctl.Client, id int64, interval time.Duration) (*api.Build, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		build, err := client.Build(ctx, id)
		if err != nil {
			return nil, err
		}
		if jobstatus.Status(build.Status).IsTerminal() {
			return build, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func parseDiffFilter(values []string) (map[diffstatus.Status]bool, error) {
	if len(values) == 0 {
		return nil, nil
	}
	filter := make(map[diffstatus.Status]bool, len(values))
	for _, value := range values {
		status, ok := diffstatus.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown diff status %q", value)
		}
		filter[status] = true
	}
	return filter, nil
}

func filterDiffs(diffs []api.Diff, filter map[diffstatus.Status]bool) []api.Diff {
	if filter == nil {
		return diffs
	}
	out := make([]api.Diff, 0, len(diffs))
	for _, d := range diffs {
		if filter[diffstatus.Status(d.Status)] {
			out = append(out, d)
		}
	}
	return out
}

func renderBuild(cmd *cobra.Command, build *api.Build, diffs []api.Diff) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)
	for _, line := range renderSectionHeader(fmt.Sprintf("Build %d", build.ID), colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("Status", jobStatusKind(build.Status), humanLabel(build.Status), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Conclusion", statusInfo, humanLabel(deref(build.Conclusion)), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Review", statusInfo, humanLabel(deref(build.ReviewStatus)), colorize))
	if build.ErrorMessage != "" {
		fmt.Fprintln(stdout, renderStatusLine("Error", statusError, build.ErrorMessage, colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("URL", statusInfo, build.URL, colorize))
	fmt.Fprintln(stdout)

	if len(diffs) == 0 {
		fmt.Fprintln(stdout, "No screenshot diffs")
		return
	}
	rows := make([][]string, 0, len(diffs))
	for _, d := range diffs {
		score := "-"
		if d.Score != nil {
			score = strconv.FormatFloat(*d.Score, 'f', 4, 64)
		}
		rows = append(rows, []string{
			strconv.FormatInt(d.ID, 10),
			d.Name,
			humanLabel(d.Status),
			colorizeStatus(d.JobStatus, colorize),
			score,
			humanLabel(deref(d.ValidationStatus)),
			d.DiffURL,
		})
	}
	fmt.Fprint(stdout, renderTable(
		[]string{"ID", "Name", "Result", "Job", "Score", "Validation", "Diff"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
	))
}

func newReviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "review <diff-id> <accepted|rejected|unknown>",
		Short: "Record a validation decision on a screenshot diff",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			build, err := client.Review(cmd.Context(), id, strings.ToLower(strings.TrimSpace(args[1])))
			if err != nil {
				return wrapClientError(err, ctx.configValue())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Diff %d marked %s; build %d review: %s\n",
				id, strings.ToLower(args[1]), build.ID, humanLabel(deref(build.ReviewStatus)))
			return nil
		},
	}
}

func newAbortCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <build-id>",
		Short: "Abort a build and its pending diffs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			build, err := client.Abort(cmd.Context(), id)
			if err != nil {
				return wrapClientError(err, ctx.configValue())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Build %d is now %s\n", build.ID, humanLabel(build.Status))
			return nil
		},
	}
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}

// localTime renders an API timestamp in the local zone.
func localTime(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return value
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
