package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/apiclient"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
	"github.com/ahmetbombaplant-boop/instagramposts222/internal/poll"
)

const usage = `usage: jobctl [flags] <command> [args]

commands:
  create   -subject S -theme T [-style S] [-target N] [-wait]
  status   <job_id>
  wait     <job_id> [-for preview_ready|done]
  previews <job_id>
  picks    <job_id>
  toggle   <job_id> <index>
  pick     <job_id> <index>...
  auto     <job_id> [-n N]
  finalize <job_id> [-caption=false] [index...]
  result   <job_id> [-wait]
`

func main() {
	_ = godotenv.Load()

	var (
		apiFlag      string
		tokenFlag    string
		intervalFlag time.Duration
		budgetFlag   time.Duration
	)
	flag.StringVar(&apiFlag, "api", envOr("JOBCTL_API_URL", "http://localhost:8080"), "API base url")
	flag.StringVar(&tokenFlag, "token", os.Getenv("API_TOKEN"), "bearer token")
	flag.DurationVar(&intervalFlag, "interval", 1500*time.Millisecond, "status poll interval")
	flag.DurationVar(&budgetFlag, "budget", 3*time.Minute, "overall wait budget")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client, err := apiclient.New(apiclient.Options{BaseURL: apiFlag, Token: tokenFlag})
	if err != nil {
		exitWithError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &cli{client: client, interval: intervalFlag, budget: budgetFlag}
	if err := cli.run(ctx, args[0], args[1:]); err != nil {
		if errors.Is(err, poll.ErrStillProcessing) {
			fmt.Fprintln(os.Stderr, "still processing; check again later")
			os.Exit(3)
		}
		exitWithError(err)
	}
}

type cli struct {
	client   *apiclient.Client
	interval time.Duration
	budget   time.Duration
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "create":
		return c.create(ctx, args)
	case "status":
		id, err := jobArg(args)
		if err != nil {
			return err
		}
		st, err := c.client.Status(ctx, id)
		if err != nil {
			return err
		}
		printStatus(st)
		return nil
	case "wait":
		return c.wait(ctx, args)
	case "previews":
		id, err := jobArg(args)
		if err != nil {
			return err
		}
		urls, err := c.client.Previews(ctx, id)
		if err != nil {
			return err
		}
		for i, u := range urls {
			fmt.Printf("%2d  %s\n", i+1, u)
		}
		return nil
	case "picks":
		id, err := jobArg(args)
		if err != nil {
			return err
		}
		p, err := c.client.Picks(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("picks=%v count=%d\n", p.Picks, p.PickCount)
		return nil
	case "toggle":
		if len(args) != 2 {
			return errors.New("toggle needs <job_id> <index>")
		}
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("index %q: %w", args[1], err)
		}
		n, err := c.client.Toggle(ctx, args[0], idx)
		if err != nil {
			return err
		}
		fmt.Printf("pick_count=%d\n", n)
		return nil
	case "pick":
		if len(args) < 2 {
			return errors.New("pick needs <job_id> <index>...")
		}
		indices, err := parseIndices(args[1:])
		if err != nil {
			return err
		}
		p, err := c.client.SetPicks(ctx, args[0], indices)
		if err != nil {
			return err
		}
		fmt.Printf("picks=%v\n", p.Picks)
		return nil
	case "auto":
		return c.auto(ctx, args)
	case "finalize":
		return c.finalize(ctx, args)
	case "result":
		return c.result(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	subject := fs.String("subject", "", "subject")
	theme := fs.String("theme", "", "theme")
	style := fs.String("style", "", "style")
	target := fs.Int("target", 0, "target count")
	wait := fs.Bool("wait", false, "wait for previews")
	if err := fs.Parse(args); err != nil {
		return err
	}
	created, err := c.client.Create(ctx, apiclient.CreateRequest{
		Subject:     strings.TrimSpace(*subject),
		Theme:       strings.TrimSpace(*theme),
		Style:       strings.TrimSpace(*style),
		TargetCount: *target,
	})
	if err != nil {
		return err
	}
	fmt.Printf("job_id=%s state=%s target_count=%d\n", created.JobID, created.State, created.TargetCount)
	if !*wait {
		return nil
	}
	st, err := c.client.WaitFor(ctx, created.JobID, c.interval, c.budget, domain.StatePreviewReady)
	if st != nil {
		printStatus(st)
	}
	return err
}

func (c *cli) wait(ctx context.Context, args []string) error {
	id, rest, err := splitJob(args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("wait", flag.ContinueOnError)
	target := fs.String("for", string(domain.StatePreviewReady), "state to wait for")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	state := domain.JobState(*target)
	if !state.Valid() {
		return fmt.Errorf("unknown state %q", *target)
	}
	st, err := c.client.WaitFor(ctx, id, c.interval, c.budget, state)
	if st != nil {
		printStatus(st)
	}
	return err
}

// auto picks the first n previews, n defaulting to the job's target count.
func (c *cli) auto(ctx context.Context, args []string) error {
	id, rest, err := splitJob(args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("auto", flag.ContinueOnError)
	n := fs.Int("n", 0, "number of previews to pick")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	count := *n
	if count <= 0 {
		st, err := c.client.Status(ctx, id)
		if err != nil {
			return err
		}
		count = min(st.TargetCount, st.CandidateCount)
	}
	indices := make([]int, 0, count)
	for i := 1; i <= count; i++ {
		indices = append(indices, i)
	}
	p, err := c.client.SetPicks(ctx, id, indices)
	if err != nil {
		return err
	}
	fmt.Printf("picks=%v\n", p.Picks)
	return nil
}

func (c *cli) finalize(ctx context.Context, args []string) error {
	id, rest, err := splitJob(args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("finalize", flag.ContinueOnError)
	caption := fs.Bool("caption", true, "request a caption (-caption=false to skip)")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	indices, err := parseIndices(fs.Args())
	if err != nil {
		return err
	}
	out, err := c.client.Finalize(ctx, id, indices, *caption)
	if err != nil {
		return err
	}
	if out.Duplicate {
		fmt.Printf("state=%s duplicate=true reason=%q\n", out.State, out.Reason)
		return nil
	}
	fmt.Printf("state=%s picks=%v\n", out.State, out.Picks)
	return nil
}

func (c *cli) result(ctx context.Context, args []string) error {
	id, rest, err := splitJob(args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("result", flag.ContinueOnError)
	wait := fs.Bool("wait", false, "wait until done")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if *wait {
		st, err := c.client.WaitFor(ctx, id, c.interval, c.budget, domain.StateDone)
		if err != nil {
			return err
		}
		if st.State == domain.StateError {
			return fmt.Errorf("job failed: %s", st.Error)
		}
	}
	res, err := c.client.Result(ctx, id)
	if err != nil {
		return err
	}
	for i, u := range res.URLs {
		fmt.Printf("%2d  %s\n", i+1, u)
	}
	if res.Caption != "" {
		fmt.Printf("\n%s\n", res.Caption)
	}
	return nil
}

func printStatus(st *apiclient.Status) {
	fmt.Printf("job_id=%s state=%s candidates=%d raw=%d profile=%s picks=%d/%d\n",
		st.JobID, st.State, st.CandidateCount, st.RawCount, st.Profile, st.PickCount, st.TargetCount)
	if st.Error != "" {
		fmt.Printf("error=%s\n", st.Error)
	}
}

func jobArg(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New("expected <job_id>")
	}
	return args[0], nil
}

func splitJob(args []string) (string, []string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", nil, errors.New("expected <job_id> first")
	}
	return args[0], args[1:], nil
}

func parseIndices(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("index %q: %w", part, err)
			}
			out = append(out, n)
		}
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
